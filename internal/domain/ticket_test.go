package domain

import "testing"

func TestAyahRangeValid(t *testing.T) {
	cases := []struct {
		name string
		r    AyahRange
		want bool
	}{
		{"single surah span", AyahRange{2, 1, 2, 20}, true},
		{"cross surah span", AyahRange{2, 280, 3, 10}, true},
		{"single ayah", AyahRange{114, 1, 114, 1}, true},
		{"surah zero", AyahRange{0, 1, 2, 5}, false},
		{"surah above 114", AyahRange{2, 1, 115, 5}, false},
		{"ayah zero", AyahRange{2, 0, 2, 5}, false},
		{"reversed surahs", AyahRange{3, 1, 2, 5}, false},
		{"reversed ayahs same surah", AyahRange{2, 20, 2, 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.r.Valid(); got != tc.want {
				t.Errorf("Valid(%+v) = %v, want %v", tc.r, got, tc.want)
			}
		})
	}
}

func TestTicketTerminal(t *testing.T) {
	terminal := map[TicketStatus]bool{
		TicketStatusPending:    false,
		TicketStatusInProgress: false,
		TicketStatusPaused:     false,
		TicketStatusSubmitted:  false,
		TicketStatusApproved:   true,
		TicketStatusRejected:   false,
		TicketStatusClosed:     true,
	}
	for status, want := range terminal {
		ticket := TicketRecord{Status: status}
		if got := ticket.Terminal(); got != want {
			t.Errorf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestLedgerMutable(t *testing.T) {
	mutable := map[TicketStatus]bool{
		TicketStatusPending:    false,
		TicketStatusInProgress: true,
		TicketStatusPaused:     true,
		TicketStatusSubmitted:  false,
		TicketStatusApproved:   false,
	}
	for status, want := range mutable {
		ticket := TicketRecord{Status: status}
		if got := ticket.LedgerMutable(); got != want {
			t.Errorf("LedgerMutable(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestBoundTo(t *testing.T) {
	id := "t1"
	ticket := TicketRecord{TeacherID: &id}
	if !ticket.BoundTo("t1") {
		t.Error("expected bound to t1")
	}
	if ticket.BoundTo("t2") {
		t.Error("not bound to t2")
	}
	unbound := TicketRecord{}
	if unbound.BoundTo("t1") {
		t.Error("unclaimed ticket is bound to nobody")
	}
}
