package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func active(n int, s Status, name, contact string, at time.Time) Ticket {
	return Ticket{Number: n, Status: s, HolderName: strp(name), HolderContact: strp(contact), ReservationDate: &at}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "00005", FormatNumber(5))
	assert.Equal(t, "10000", FormatNumber(10000))
	assert.Equal(t, []string{"00001", "00042"}, FormatNumbers([]int{1, 42}))
}

func TestValidNumber(t *testing.T) {
	assert.False(t, ValidNumber(0))
	assert.True(t, ValidNumber(1))
	assert.True(t, ValidNumber(TicketCount))
	assert.False(t, ValidNumber(TicketCount+1))
}

func TestTicketConsistent(t *testing.T) {
	now := time.Now()
	assert.True(t, Ticket{Number: 1, Status: StatusAvailable}.Consistent())
	assert.True(t, active(1, StatusReserved, "Ana", "ana@x.com", now).Consistent())
	assert.False(t, Ticket{Number: 1, Status: StatusSold}.Consistent())

	half := Ticket{Number: 1, Status: StatusAvailable, HolderName: strp("Ana")}
	assert.False(t, half.Consistent())
}

func TestGroupReservations(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	tickets := []Ticket{
		active(7, StatusReserved, "Luis", "l@x.com", t0.Add(2*time.Hour)),
		active(1, StatusSold, "Ana", "5511112222", t0.Add(time.Hour)),
		active(2, StatusSold, "Ana", "5511112222", t0.Add(time.Hour)),
		active(8, StatusSold, "Luis", "l@x.com", t0),
		{Number: 9, Status: StatusAvailable},
	}

	groups := GroupReservations(tickets)
	require.Len(t, groups, 2)

	assert.Equal(t, "Luis", groups[0].Name)
	assert.Equal(t, StatusReserved, groups[0].Status)
	assert.Equal(t, []int{7, 8}, groups[0].Numbers)
	assert.Equal(t, t0.Add(2*time.Hour), groups[0].LatestReserve)

	assert.Equal(t, "Ana", groups[1].Name)
	assert.Equal(t, StatusSold, groups[1].Status)
	assert.Equal(t, []string{"00001", "00002"}, groups[1].Labels)

	sold := FilterGroups(groups, StatusSold)
	require.Len(t, sold, 1)
	assert.Equal(t, "Ana", sold[0].Name)
	assert.Len(t, FilterGroups(groups, ""), 2)
}

func TestGroupReservationsSameNameDifferentContact(t *testing.T) {
	now := time.Now()
	groups := GroupReservations([]Ticket{
		active(1, StatusReserved, "Ana", "a@x.com", now),
		active(2, StatusReserved, "Ana", "b@x.com", now),
	})
	assert.Len(t, groups, 2)
}
