package mcp

import "testing"

func TestValidateFeatureName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"echo", false},
		{"echo.tool-1_v2", false},
		{"", true},
		{"has a space", true},
		{"has/slash", true},
	}
	for _, c := range cases {
		err := ValidateFeatureName("tool", c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateFeatureName(%q): err=%v, wantErr=%v", c.name, err, c.wantErr)
		}
	}
}

func TestValidateFeatureNameTooLong(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateFeatureName("prompt", string(long)); err == nil {
		t.Error("expected an error for a 200-character name")
	}
}

func TestValidateResourceURI(t *testing.T) {
	cases := []struct {
		uri     string
		wantErr bool
	}{
		{"mem://server/status", false},
		{"file:///var/log/app.log", false},
		{"", true},
		{"no-scheme-here", true},
	}
	for _, c := range cases {
		err := ValidateResourceURI(c.uri)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateResourceURI(%q): err=%v, wantErr=%v", c.uri, err, c.wantErr)
		}
	}
}
