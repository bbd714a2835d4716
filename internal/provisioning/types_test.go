package provisioning

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/imamik/nexus/internal/config"
)

func TestStatus_IsTerminal(t *testing.T) {
	t.Parallel()
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.False(t, StatusAwaitingInput.IsTerminal())
	assert.True(t, StatusSucceeded.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusSkipped.IsTerminal())
}

func TestUserProfile_Identity(t *testing.T) {
	t.Parallel()

	p := UserProfile{GivenName: "Jane", Surname: "Van Doe", Email: "jane.doe@example.com"}
	assert.Equal(t, "jane.doe@example.com", p.Identity(IdentityEmail))

	tests := []struct {
		name    string
		profile UserProfile
		want    string
	}{
		{"ascii", UserProfile{GivenName: "Jane", Surname: "Van Doe"}, "jvandoe"},
		{"accented initial", UserProfile{GivenName: "Élodie", Surname: "Durand"}, "édurand"},
		{"cjk initial", UserProfile{GivenName: "美咲", Surname: "Sato"}, "美sato"},
		{"mail fallback", UserProfile{Email: "J.Doe@example.com"}, "j.doe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.profile.Identity(IdentityUsername)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestIdentityKind_ConflictKind(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ConflictDuplicateEmail, IdentityEmail.ConflictKind())
	assert.Equal(t, ConflictDuplicateUsername, IdentityUsername.ConflictKind())
}

func TestNewRunRequest_IsolatedFromCaller(t *testing.T) {
	t.Parallel()

	user := UserProfile{Email: "a@b.c", Attributes: map[string]string{"cost_center": "42"}}
	vendors := []config.VendorConfig{{ID: "acme"}, {ID: "globex"}}
	req := NewRunRequest(user, vendors)

	user.Attributes["cost_center"] = "99"
	vendors[0].ID = "mutated"

	assert.Equal(t, "42", req.User().Attributes["cost_center"])
	assert.Equal(t, "acme", req.Vendors()[0].ID)

	got := req.Vendors()
	got[1].ID = "changed"
	assert.Equal(t, "globex", req.Vendors()[1].ID)
}

func TestSnapshot_Duration(t *testing.T) {
	t.Parallel()
	start := time.Now()
	end := start.Add(3 * time.Second)

	assert.Equal(t, time.Duration(0), Snapshot{}.Duration())
	assert.False(t, Snapshot{}.Started())
	s := Snapshot{StartedAt: &start, EndedAt: &end}
	assert.True(t, s.Started())
	assert.Equal(t, 3*time.Second, s.Duration())
}
