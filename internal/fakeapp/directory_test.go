package fakeapp

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kuitang/admin-e2e/internal/users"
)

func TestGenerateUsers_Deterministic(t *testing.T) {
	a, b := GenerateUsers(57), GenerateUsers(57)
	if len(a) != 57 {
		t.Fatalf("len = %d", len(a))
	}
	seen := map[string]bool{}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("user %d differs between runs", i)
		}
		if seen[a[i].Email] {
			t.Fatalf("duplicate email %s", a[i].Email)
		}
		seen[a[i].Email] = true
		if a[i].Joined.After(LatestJoin) {
			t.Fatalf("user %d joined after %s", i, LatestJoin)
		}
	}
}

func TestFilter_Properties(t *testing.T) {
	all := GenerateUsers(57)
	rapid.Check(t, func(t *rapid.T) {
		f := Filter{
			Query:  rapid.SampledFrom([]string{"", "fin", "FIN", "a", "zz", "@example"}).Draw(t, "q"),
			Status: rapid.SampledFrom(append([]users.Status{""}, users.Statuses...)).Draw(t, "status"),
		}
		if rapid.Bool().Draw(t, "ranged") {
			days := rapid.IntRange(0, 70).Draw(t, "days")
			from := LatestJoin.AddDate(0, 0, -days)
			f.Range = &users.DateRange{From: from, To: from.AddDate(0, 0, rapid.IntRange(0, 10).Draw(t, "span"))}
		}

		got := f.Apply(all)
		if len(got) > len(all) {
			t.Fatalf("filter grew the directory")
		}
		in := map[int]bool{}
		for _, u := range got {
			in[u.ID] = true
			if !f.Matches(u) {
				t.Fatalf("user %d returned but does not match", u.ID)
			}
		}
		for _, u := range all {
			if !in[u.ID] && f.Matches(u) {
				t.Fatalf("user %d matches but was dropped", u.ID)
			}
		}
	})
}

func TestFilter_DateRangeInclusive(t *testing.T) {
	u := User{Joined: time.Date(2025, 8, 28, 15, 0, 0, 0, time.UTC)}
	f := Filter{Range: &users.DateRange{From: time.Date(2025, 8, 28, 0, 0, 0, 0, time.UTC), To: time.Date(2025, 8, 28, 0, 0, 0, 0, time.UTC)}}
	if !f.Matches(u) {
		t.Fatal("single-day range must include that day")
	}
}
