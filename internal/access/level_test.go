package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name      string
		existing  Level
		requested Level
		want      Level
	}{
		{"none to email", LevelNone, LevelEmail, LevelEmail},
		{"none to phone", LevelNone, LevelPhone, LevelPhone},
		{"none to both", LevelNone, LevelBoth, LevelBoth},
		{"email plus phone combines", LevelEmail, LevelPhone, LevelBoth},
		{"phone plus email combines", LevelPhone, LevelEmail, LevelBoth},
		{"email replay stays email", LevelEmail, LevelEmail, LevelEmail},
		{"phone replay stays phone", LevelPhone, LevelPhone, LevelPhone},
		{"email to both upgrades", LevelEmail, LevelBoth, LevelBoth},
		{"phone to both upgrades", LevelPhone, LevelBoth, LevelBoth},
		{"both absorbs email", LevelBoth, LevelEmail, LevelBoth},
		{"both absorbs phone", LevelBoth, LevelPhone, LevelBoth},
		{"both absorbs both", LevelBoth, LevelBoth, LevelBoth},
		{"full absorbs email", LevelFull, LevelEmail, LevelFull},
		{"full absorbs phone", LevelFull, LevelPhone, LevelFull},
		{"full absorbs both", LevelFull, LevelBoth, LevelFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.existing, tt.requested))
		})
	}
}

// The merged level must never grant less than the stored one already
// did, whatever order concurrent upgrades land in.
func TestMerge_NeverDowngrades(t *testing.T) {
	all := []Level{LevelNone, LevelEmail, LevelPhone, LevelBoth, LevelFull}
	requestable := []Level{LevelEmail, LevelPhone, LevelBoth}

	for _, existing := range all {
		for _, requested := range requestable {
			merged := Merge(existing, requested)

			if existing.HasEmail() {
				assert.True(t, merged.HasEmail(),
					"merge(%s, %s) dropped email visibility", existing, requested)
			}
			if existing.HasPhone() {
				assert.True(t, merged.HasPhone(),
					"merge(%s, %s) dropped phone visibility", existing, requested)
			}
			if requested.HasEmail() {
				assert.True(t, merged.HasEmail(),
					"merge(%s, %s) did not grant requested email", existing, requested)
			}
			if requested.HasPhone() {
				assert.True(t, merged.HasPhone(),
					"merge(%s, %s) did not grant requested phone", existing, requested)
			}
		}
	}
}

func TestMerge_OrderIndependent(t *testing.T) {
	requestable := []Level{LevelEmail, LevelPhone, LevelBoth}
	for _, a := range requestable {
		for _, b := range requestable {
			assert.Equal(t, Merge(Merge(LevelNone, a), b), Merge(Merge(LevelNone, b), a),
				"merge order of %s and %s changed the outcome", a, b)
		}
	}
}

func TestLevel_Visibility(t *testing.T) {
	assert.False(t, LevelNone.HasEmail())
	assert.False(t, LevelNone.HasPhone())
	assert.True(t, LevelEmail.HasEmail())
	assert.False(t, LevelEmail.HasPhone())
	assert.False(t, LevelPhone.HasEmail())
	assert.True(t, LevelPhone.HasPhone())
	assert.True(t, LevelBoth.HasEmail())
	assert.True(t, LevelBoth.HasPhone())
	assert.True(t, LevelFull.HasEmail())
	assert.True(t, LevelFull.HasPhone())
}

func TestLevel_Requestable(t *testing.T) {
	assert.False(t, LevelNone.Requestable())
	assert.True(t, LevelEmail.Requestable())
	assert.True(t, LevelPhone.Requestable())
	assert.True(t, LevelBoth.Requestable())
	assert.False(t, LevelFull.Requestable(), "FULL is granted out of band only")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"EMAIL", LevelEmail, false},
		{"PHONE", LevelPhone, false},
		{"BOTH", LevelBoth, false},
		{"FULL", LevelNone, true},
		{"NONE", LevelNone, true},
		{"email", LevelNone, true},
		{"", LevelNone, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		assert.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}
