package models

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "aidchain/pkg/domain-errors"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"transporter", RoleTransporter, true},
		{" Recipient ", RoleRecipient, true},
		{"GROUND_HANDLER", RoleGroundHandler, true},
		{"ground_relief", RoleGroundHandler, true},
		{"none", RoleNone, false},
		{"", RoleNone, false},
		{"authority", RoleNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if !tt.ok {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewParticipant(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000AB")
	now := time.Now()

	p, err := NewParticipant(addr, RoleRecipient, "  SAMOA ", now)
	require.NoError(t, err)
	assert.Equal(t, "SAMOA", p.Location)
	assert.Equal(t, "did:aid:0x00000000000000000000000000000000000000ab", p.DisplayID())

	_, err = NewParticipant(addr, RoleRecipient, "   ", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = NewParticipant(addr, RoleNone, "FIJI", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = NewParticipant(common.Address{}, RoleRecipient, "FIJI", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
