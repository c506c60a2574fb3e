package fakeapp

import (
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/admin-e2e/internal/users"
)

// User is one row of the App Users table.
type User struct {
	ID     int          `json:"id"`
	Name   string       `json:"name"`
	Email  string       `json:"email"`
	Status users.Status `json:"status"`
	Joined time.Time    `json:"-"`
}

// Row is the JSON shape the users view renders.
type Row struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
	Joined string `json:"joined"`
}

func (u User) row() Row {
	return Row{ID: u.ID, Name: u.Name, Email: u.Email, Status: string(u.Status), Joined: users.FormatDate(u.Joined)}
}

var (
	firstNames = []string{
		"Finley", "Ava", "Griffin", "Maya", "Noah", "Delfina", "Liam", "Zoe", "Omar", "Priya",
		"Josefina", "Ethan", "Hana", "Rufina", "Lucas", "Ines", "Kofi", "Mila", "Finn",
	}
	lastNames = []string{
		"Okafor", "Nguyen", "Tiffin", "Rossi", "Kowalski", "Haddad", "Moreau", "Sato",
		"Garcia", "Lindqvist", "Mbeki", "Patel", "Stein",
	}
	// LatestJoin is the most recent join date in the generated directory.
	LatestJoin = time.Date(2025, 8, 30, 0, 0, 0, 0, time.UTC)
)

// GenerateUsers builds a deterministic directory of n users with a mix of
// statuses and join dates spread over the two months before LatestJoin.
func GenerateUsers(n int) []User {
	out := make([]User, 0, n)
	for i := 0; i < n; i++ {
		first := firstNames[i%len(firstNames)]
		last := lastNames[(i*7)%len(lastNames)]
		status := users.Active
		switch {
		case i%11 == 5:
			status = users.Banned
		case i%7 == 3:
			status = users.Suspended
		}
		out = append(out, User{
			ID:     i + 1,
			Name:   first + " " + last,
			Email:  fmt.Sprintf("%s.%s%d@example.com", strings.ToLower(first), strings.ToLower(last), i+1),
			Status: status,
			Joined: LatestJoin.AddDate(0, 0, -((i * 5) % 63)),
		})
	}
	return out
}

// Filter narrows the directory the way the users view's controls do.
type Filter struct {
	Query  string
	Status users.Status
	Range  *users.DateRange
}

// Matches reports whether u passes every set criterion.
func (f Filter) Matches(u User) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(u.Name), q) && !strings.Contains(strings.ToLower(u.Email), q) {
			return false
		}
	}
	if f.Status != "" && u.Status != f.Status {
		return false
	}
	if f.Range != nil && !f.Range.Contains(u.Joined) {
		return false
	}
	return true
}

// Apply returns the users matching f, in directory order.
func (f Filter) Apply(all []User) []User {
	var out []User
	for _, u := range all {
		if f.Matches(u) {
			out = append(out, u)
		}
	}
	return out
}
