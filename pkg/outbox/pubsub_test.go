package outbox

import "testing"

func TestTopicResourceName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		projectID string
		topic     string
		want      string
	}{
		{"short id expanded", "mv-prod", "domain-events", "projects/mv-prod/topics/domain-events"},
		{"full resource passthrough", "mv-prod", "projects/other/topics/domain-events", "projects/other/topics/domain-events"},
		{"blank topic", "mv-prod", "  ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := topicResourceName(tc.projectID, tc.topic); got != tc.want {
				t.Fatalf("topicResourceName(%q, %q) = %q, want %q", tc.projectID, tc.topic, got, tc.want)
			}
		})
	}
}
