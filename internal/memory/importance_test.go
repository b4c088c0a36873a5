package memory

import "testing"

func TestCalculateImportance(t *testing.T) {
	cases := []struct {
		name       string
		contentLen int
		confidence uint8
		tagCount   int
		want       uint8
	}{
		{"short content, no confidence, no tags", 10, 0, 0, 0},
		{"1000 char content caps the length term at 10", 5000, 0, 0, 10},
		{"tag bonus caps at 5 tags", 0, 0, 12, 10},
		{"confidence alone", 0, 50, 0, 50},
		{"everything saturates at 100", 5000, 200, 10, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			content := make([]byte, tc.contentLen)
			got := calculateImportance(string(content), tc.confidence, tc.tagCount)
			if got != tc.want {
				t.Fatalf("calculateImportance(len=%d, confidence=%d, tags=%d) = %d, want %d",
					tc.contentLen, tc.confidence, tc.tagCount, got, tc.want)
			}
		})
	}
}
