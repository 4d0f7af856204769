package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerIDKeyRoundTrip(t *testing.T) {
	for _, id := range []PlayerID{UserPlayer(42), BotPlayer("knight-fury")} {
		parsed, err := ParsePlayerID(id.Key())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}
	assert.Equal(t, "user:42", UserPlayer(42).String())
	assert.Equal(t, "", PlayerID{}.Key())
}

func TestParsePlayerIDInvalid(t *testing.T) {
	for _, s := range []string{"", "42", "user:", "user:abc", "user:-3", "bot:", "bot:a/b", "team:1"} {
		_, err := ParsePlayerID(s)
		assert.ErrorIs(t, err, ErrInvalidPlayerID, s)
	}
}

func TestPlayerIDValidate(t *testing.T) {
	assert.NoError(t, UserPlayer(1).Validate())
	assert.ErrorIs(t, UserPlayer(0).Validate(), ErrInvalidPlayerID)
	assert.ErrorIs(t, PlayerID{Kind: KindUser, UserID: 1, BotID: "x"}.Validate(), ErrInvalidPlayerID)
	assert.ErrorIs(t, BotPlayer("has space").Validate(), ErrInvalidPlayerID)
	assert.ErrorIs(t, PlayerID{Kind: "team"}.Validate(), ErrInvalidPlayerID)
	assert.ErrorIs(t, PlayerID{}.Validate(), ErrInvalidPlayerID)
}

func TestPlayerIDJSON(t *testing.T) {
	data, err := json.Marshal(UserPlayer(7))
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":7}`, string(data))

	data, err = json.Marshal(BotPlayer("stockfish"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"bot_id":"stockfish"}`, string(data))

	cases := map[string]PlayerID{
		`{"user_id":7}`:          UserPlayer(7),
		`{"bot_id":"stockfish"}`: BotPlayer("stockfish"),
		`"user:7"`:               UserPlayer(7),
		`"bot:stockfish"`:        BotPlayer("stockfish"),
		`null`:                   {},
	}
	for in, want := range cases {
		var got PlayerID
		require.NoError(t, json.Unmarshal([]byte(in), &got), in)
		assert.Equal(t, want, got, in)
	}

	// a numeric string is never guessed to be a user id or a bot id
	for _, in := range []string{`{}`, `{"user_id":1,"bot_id":"x"}`, `"7"`, `7`, `{"bot_id":""}`} {
		var got PlayerID
		assert.ErrorIs(t, json.Unmarshal([]byte(in), &got), ErrInvalidPlayerID, in)
	}
}
