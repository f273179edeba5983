package extract

import (
	"encoding/base64"
	"testing"
)

func TestDecodeAtob(t *testing.T) {
	plain := `{"file":"https://cdn.example.com/x.m3u8"}`
	std := base64.StdEncoding.EncodeToString([]byte(plain))
	raw := base64.RawURLEncoding.EncodeToString([]byte(plain + "?"))

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"double quoted", `eval(atob("` + std + `"))`, []string{plain}},
		{"single quoted spaced", `atob( '` + std + `' )`, []string{plain}},
		{"url alphabet unpadded", "atob(`" + raw + "`)", []string{plain + "?"}},
		{"binary skipped", `atob("AAECYmluYXJ5//4=")`, nil},
		{"url alphabet binary skipped", `atob("AAEC-_-_YmluYXJ5")`, nil},
		{"not base64", `atob("not*base64*at*all")`, nil},
		{"too short", `atob("YQ==")`, nil},
		{"no atob", std, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeAtob(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("DecodeAtob() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("DecodeAtob()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
