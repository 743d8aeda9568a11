package domain

import "testing"

func TestValidPlayerNames_RejectsRestrictedCharacters(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"GoodName", true},
		{"Bad Name", false},
		{"Bad,Name", false},
		{"Bad<Name", false},
		{"Bad>Name", false},
		{"Bad%Name", false},
		{"Bad&Name", false},
		{`Bad\Name`, false},
		{`Bad"Name`, false},
		{"Bad?Name", false},
		{"Bad*Name", false},
		{"Bad#Name", false},
		{"Bad/Name", false},
		{"Bad:Name", false},
		{"Tab\tName", false},
		{"Ünïcode", false},
		{"control\x01", false},
	}
	for _, tc := range cases {
		if got := ValidPlayerNames([]string{tc.name}, Banlist{}); got != tc.valid {
			t.Errorf("ValidPlayerNames(%q) = %v, want %v", tc.name, got, tc.valid)
		}
	}
}

func TestValidPlayerNames_RejectsBannedSubstrings(t *testing.T) {
	banlist := NewBanlist([]string{"bad", ""})

	if ValidPlayerNames([]string{"BadName"}, banlist) {
		t.Fatal("expected BadName to be rejected with BAD banned")
	}
	if ValidPlayerNames([]string{"notsoBAD"}, banlist) {
		t.Fatal("expected case-insensitive substring match")
	}
	if !ValidPlayerNames([]string{"GoodName"}, banlist) {
		t.Fatal("expected GoodName to be accepted")
	}
}

func TestValidPlayerNames_OneBadNameDisqualifiesAll(t *testing.T) {
	if ValidPlayerNames([]string{"GoodName", "Bad Name"}, Banlist{}) {
		t.Fatal("expected one invalid name to reject the whole session")
	}
}

func TestValidPlayerNames_EmptyListIsValid(t *testing.T) {
	if !ValidPlayerNames(nil, NewBanlist([]string{"bad"})) {
		t.Fatal("expected empty player list to be valid")
	}
}

func TestLoadBanlist_MissingFile(t *testing.T) {
	if _, err := LoadBanlist("does-not-exist"); err == nil {
		t.Fatal("expected error for missing banlist file")
	}
}
