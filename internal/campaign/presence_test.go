package campaign

import "testing"

func TestPresenceReplaceDeduplicates(t *testing.T) {
	tr := NewPresenceTracker()
	tr.Replace([]Member{
		{UserID: "u1", Name: "Ayla"},
		{UserID: "u2", Name: "Brin"},
		{UserID: "u1", Name: "Ayla (second tab)"},
	})

	members := tr.Members()
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[0].Name != "Ayla" {
		t.Errorf("expected first occurrence to win, got %q", members[0].Name)
	}
}

func TestPresenceReplaceIsWholesale(t *testing.T) {
	tr := NewPresenceTracker()
	tr.Replace([]Member{{UserID: "u1", Name: "Ayla"}, {UserID: "u2", Name: "Brin"}})
	tr.Replace([]Member{{UserID: "u3", Name: "Cal"}})

	members := tr.Members()
	if len(members) != 1 {
		t.Fatalf("expected 1 member after replace, got %d", len(members))
	}
	if members[0].UserID != "u3" {
		t.Errorf("expected u3, got %q", members[0].UserID)
	}
}

func TestPresenceReplaceNilEmpties(t *testing.T) {
	tr := NewPresenceTracker()
	tr.Replace([]Member{{UserID: "u1", Name: "Ayla"}})
	tr.Replace(nil)

	if n := len(tr.Members()); n != 0 {
		t.Fatalf("expected empty roster, got %d members", n)
	}
}

func TestPresenceSkipsEmptyUserID(t *testing.T) {
	tr := NewPresenceTracker()
	tr.Replace([]Member{{UserID: "", Name: "ghost"}, {UserID: "u1", Name: "Ayla"}})

	members := tr.Members()
	if len(members) != 1 || members[0].UserID != "u1" {
		t.Fatalf("expected only u1, got %v", members)
	}
}

func TestPresenceMembersReturnsCopy(t *testing.T) {
	tr := NewPresenceTracker()
	tr.Replace([]Member{{UserID: "u1", Name: "Ayla"}})

	snapshot := tr.Members()
	snapshot[0].Name = "mutated"

	if tr.Members()[0].Name != "Ayla" {
		t.Error("mutating the snapshot leaked into the tracker")
	}
}
