package agent

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func TestGenerateTitle_Normal(t *testing.T) {
	title := generateTitle("Hello, how are you doing today?")
	if title == "" || title == "New conversation" {
		t.Fatalf("expected meaningful title, got %q", title)
	}
	if title != "Hello, how are you doing today?" {
		t.Fatalf("short message should be used as-is, got %q", title)
	}
}

func TestGenerateTitle_Empty(t *testing.T) {
	title := generateTitle("")
	if title != "New conversation" {
		t.Fatalf("expected 'New conversation', got %q", title)
	}
}

func TestGenerateTitle_Whitespace(t *testing.T) {
	title := generateTitle("   ")
	if title != "New conversation" {
		t.Fatalf("expected 'New conversation' for whitespace, got %q", title)
	}
}

func TestGenerateTitle_LongMessage(t *testing.T) {
	long := "This is a very long message that exceeds the sixty character limit and should be truncated with an ellipsis"
	title := generateTitle(long)
	if len(title) > 70 {
		t.Fatalf("title too long: %d chars: %q", len(title), title)
	}
	if title[len(title)-3:] != "..." {
		t.Fatalf("expected ellipsis at end, got %q", title)
	}
}

func TestGenerateTitle_Multiline(t *testing.T) {
	title := generateTitle("First line\nSecond line\nThird line")
	if title != "First line" {
		t.Fatalf("expected only first line, got %q", title)
	}
}

func TestGenerateTitle_ExactlyAtLimit(t *testing.T) {
	// exactly 60 characters: kept as-is
	msg := "123456789012345678901234567890123456789012345678901234567890"
	title := generateTitle(msg)
	if title != msg {
		t.Fatalf("60-char message should be kept as-is, got %q (len %d)", title, len(title))
	}
}

func TestGenerateTitle_MultiByteStaysValidUTF8(t *testing.T) {
	title := generateTitle(strings.Repeat("é", 70))
	if !utf8.ValidString(title) {
		t.Fatalf("title is not valid UTF-8: %q", title)
	}
	if want := strings.Repeat("é", 60) + "..."; title != want {
		t.Fatalf("expected 60 runes plus ellipsis, got %q", title)
	}

	title = generateTitle("Wie unterscheiden sich Übungsaufgaben und Prüfungsfragen in diesem Kurs genau?")
	if !utf8.ValidString(title) || !strings.HasSuffix(title, "...") {
		t.Fatalf("unexpected title %q", title)
	}
}

func TestGenerateTitle_61Chars(t *testing.T) {
	// 61 chars — should truncate
	msg := "This is exactly sixty one characters long with spaces in it.!"
	title := generateTitle(msg)
	if len(title) > 65 { // some buffer for "..."
		t.Fatalf("61-char message should be truncated, got len=%d: %q", len(title), title)
	}
}

// --- SessionManager ---

func TestSessionManager_UnseenSessionHasEmptyHistory(t *testing.T) {
	sm := NewSessionManager(2, testLogger())
	if h := sm.History("never-used"); len(h) != 0 {
		t.Fatalf("expected empty history, got %v", h)
	}
}

func TestSessionManager_KeepsMostRecentTurns(t *testing.T) {
	for _, tc := range []struct {
		maxTurns, added int
	}{
		{2, 1}, {2, 2}, {2, 5}, {3, 7}, {1, 4},
	} {
		t.Run(fmt.Sprintf("max%d_added%d", tc.maxTurns, tc.added), func(t *testing.T) {
			sm := NewSessionManager(tc.maxTurns, testLogger())
			for i := 1; i <= tc.added; i++ {
				sm.AddExchange("s", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
			}

			h := sm.History("s")
			want := min(tc.maxTurns, tc.added)
			if len(h) != want {
				t.Fatalf("expected %d turns, got %d", want, len(h))
			}
			first := tc.added - want + 1
			for i, turn := range h {
				n := first + i
				if turn.Ordinal != n || turn.User != fmt.Sprintf("q%d", n) || turn.Assistant != fmt.Sprintf("a%d", n) {
					t.Fatalf("turn %d: unexpected %+v", i, turn)
				}
			}
		})
	}
}

func TestSessionManager_ZeroBoundKeepsNothing(t *testing.T) {
	sm := NewSessionManager(0, testLogger())
	turn := sm.AddExchange("s", "hello", "hi")
	if turn.Ordinal != 1 {
		t.Fatalf("expected ordinal 1, got %d", turn.Ordinal)
	}
	if h := sm.History("s"); len(h) != 0 {
		t.Fatalf("expected no retained turns, got %v", h)
	}
}

func TestSessionManager_OrdinalsNotReusedAfterEviction(t *testing.T) {
	sm := NewSessionManager(1, testLogger())
	sm.AddExchange("s", "q1", "a1")
	sm.AddExchange("s", "q2", "a2")
	turn := sm.AddExchange("s", "q3", "a3")
	if turn.Ordinal != 3 {
		t.Fatalf("expected ordinal 3, got %d", turn.Ordinal)
	}
}

func TestSessionManager_HistoryIsACopy(t *testing.T) {
	sm := NewSessionManager(2, testLogger())
	sm.AddExchange("s", "q1", "a1")
	h := sm.History("s")
	h[0].User = "tampered"
	if sm.History("s")[0].User != "q1" {
		t.Fatal("History must not expose internal state")
	}
}

func TestSessionManager_SessionsAreIndependent(t *testing.T) {
	sm := NewSessionManager(2, testLogger())
	sm.AddExchange("a", "qa", "aa")
	sm.AddExchange("b", "qb", "ab")
	if h := sm.History("a"); len(h) != 1 || h[0].User != "qa" {
		t.Fatalf("session a polluted: %v", h)
	}
	if sm.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", sm.Len())
	}
}

func TestSessionManager_Clear(t *testing.T) {
	sm := NewSessionManager(2, testLogger())
	sm.AddExchange("s", "q1", "a1")
	if !sm.Clear("s") {
		t.Fatal("expected Clear to report an existing session")
	}
	if sm.Clear("s") {
		t.Fatal("second Clear should report nothing removed")
	}
	if len(sm.History("s")) != 0 {
		t.Fatal("history should be gone")
	}
	if turn := sm.AddExchange("s", "again", "ok"); turn.Ordinal != 1 {
		t.Fatalf("cleared session should restart at ordinal 1, got %d", turn.Ordinal)
	}
}

func TestSessionManager_SessionsListing(t *testing.T) {
	sm := NewSessionManager(1, testLogger())
	sm.AddExchange("old", "Tell me about lesson 1", "sure")
	sm.AddExchange("new", "What is a mock?", "a stand-in")
	sm.AddExchange("new", "And a stub?", "simpler")

	infos := sm.Sessions()
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
	byID := map[string]SessionInfo{}
	for _, in := range infos {
		byID[in.ID] = in
	}
	n := byID["new"]
	if n.Title != "What is a mock?" || n.Turns != 1 || n.Exchanges != 2 {
		t.Fatalf("unexpected info %+v", n)
	}
}

func TestSessionManager_ConcurrentAppendsSameSession(t *testing.T) {
	const writers = 20
	sm := NewSessionManager(writers, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sm.AddExchange("shared", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
			_ = sm.History("shared")
		}(i)
	}
	wg.Wait()

	h := sm.History("shared")
	if len(h) != writers {
		t.Fatalf("expected %d turns, got %d", writers, len(h))
	}
	seen := map[int]bool{}
	for i, turn := range h {
		if turn.Ordinal != i+1 {
			t.Fatalf("ordinals must be dense and ordered: position %d has %d", i, turn.Ordinal)
		}
		seen[turn.Ordinal] = true
	}
	if len(seen) != writers {
		t.Fatal("duplicate ordinals")
	}
}

func TestSessionManager_ConcurrentDistinctSessions(t *testing.T) {
	sm := NewSessionManager(2, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			for j := 0; j < 5; j++ {
				sm.AddExchange(id, "q", "a")
			}
		}(i)
	}
	wg.Wait()

	if sm.Len() != 10 {
		t.Fatalf("expected 10 sessions, got %d", sm.Len())
	}
	for i := 0; i < 10; i++ {
		h := sm.History(fmt.Sprintf("s%d", i))
		if len(h) != 2 || h[1].Ordinal != 5 {
			t.Fatalf("session s%d: unexpected history %+v", i, h)
		}
	}
}
