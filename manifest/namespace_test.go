package manifest

import "testing"

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"mypack", false},
		{"my_pack", false},
		{"my-pack.v2", false},
		{"pack42", false},
		{"", true},
		{"MyPack", true},
		{"my pack", true},
		{".hidden", true},
		{"trailing.", true},
		{"minecraft", true},
		{"cobble", true},
		{"cb", true},
	}
	for _, tt := range tests {
		err := ValidateNamespace(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateNamespace(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestIsReservedNamespace(t *testing.T) {
	if !IsReservedNamespace("minecraft") {
		t.Error("minecraft should be reserved")
	}
	if IsReservedNamespace("mypack") {
		t.Error("mypack should not be reserved")
	}
}
