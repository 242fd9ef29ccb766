package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nuts-rice/torrust-tracker/pkg/timecache"
)

func TestGenerateKeyShape(t *testing.T) {
	pk, err := GenerateKey(0)
	require.NoError(t, err)
	require.Len(t, string(pk.Key), KeyLength)
	require.True(t, pk.IsPermanent())

	_, err = ParseKey(string(pk.Key))
	require.NoError(t, err)
}

func TestGenerateKeyWithLifetime(t *testing.T) {
	pk, err := GenerateKey(100)
	require.NoError(t, err)
	require.False(t, pk.IsPermanent())

	now := timecache.NowUnix()
	require.InDelta(t, now+100, pk.ValidUntil, 2)
	require.False(t, pk.IsExpiredAt(now))
	require.True(t, pk.IsExpiredAt(pk.ValidUntil+1))
}

func TestGenerateKeyRefusesOverflowingLifetime(t *testing.T) {
	_, err := GenerateKey(1<<63 - 1)
	require.ErrorIs(t, err, ErrDurationOverflow)
}

func TestParseKeyRejectsBadInput(t *testing.T) {
	_, err := ParseKey("too-short")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParseKey("!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParseKey("YZSl4lMZupRuOpSRC3krIKR5BPB14nrJ")
	require.NoError(t, err)
}

func TestRepository(t *testing.T) {
	repo := NewRepository()

	pk := PeerKey{Key: "YZSl4lMZupRuOpSRC3krIKR5BPB14nrJ"}
	repo.Insert(pk)
	require.Equal(t, 1, repo.Len())
	require.Equal(t, &pk, repo.Get(pk.Key))

	repo.Remove(pk.Key)
	require.Nil(t, repo.Get(pk.Key))

	repo.ResetWith([]PeerKey{pk, {Key: "xqpqOMNf7Qd9dLGJtIyeahsb1PDUAMhG"}})
	require.Equal(t, 2, repo.Len())

	repo.Clear()
	require.Equal(t, 0, repo.Len())
}

func TestAuthenticatePublicMode(t *testing.T) {
	s := NewService(Config{Private: false}, NewRepository())

	require.NoError(t, s.Authenticate(""))
	require.NoError(t, s.Authenticate("anything-goes-here"))
}

func TestAuthenticatePrivateMode(t *testing.T) {
	repo := NewRepository()
	s := NewService(Config{Private: true, CheckKeysExpiration: true}, repo)

	require.ErrorIs(t, s.Authenticate(""), ErrMissingKey)
	require.ErrorIs(t, s.Authenticate("not a key at all"), ErrUnknownKey)
	require.ErrorIs(t, s.Authenticate("YZSl4lMZupRuOpSRC3krIKR5BPB14nrJ"), ErrUnknownKey)

	valid := PeerKey{Key: "YZSl4lMZupRuOpSRC3krIKR5BPB14nrJ", ValidUntil: timecache.NowUnix() + 3600}
	repo.Insert(valid)
	require.NoError(t, s.Authenticate(string(valid.Key)))

	expired := PeerKey{Key: "xqpqOMNf7Qd9dLGJtIyeahsb1PDUAMhG", ValidUntil: timecache.NowUnix() - 1}
	repo.Insert(expired)
	require.ErrorIs(t, s.Authenticate(string(expired.Key)), ErrExpiredKey)

	permanent := PeerKey{Key: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	repo.Insert(permanent)
	require.NoError(t, s.Authenticate(string(permanent.Key)))
}

func TestAuthenticateExpiredKeyAcceptedWhenCheckDisabled(t *testing.T) {
	repo := NewRepository()
	s := NewService(Config{Private: true, CheckKeysExpiration: false}, repo)

	expired := PeerKey{Key: "xqpqOMNf7Qd9dLGJtIyeahsb1PDUAMhG", ValidUntil: timecache.NowUnix() - 1}
	repo.Insert(expired)

	require.NoError(t, s.Authenticate(string(expired.Key)))
}

type fakeKeyStore struct {
	keys map[Key]PeerKey
}

func (f *fakeKeyStore) LoadKeys() ([]PeerKey, error) {
	var out []PeerKey
	for _, pk := range f.keys {
		out = append(out, pk)
	}
	return out, nil
}

func (f *fakeKeyStore) AddKey(peerKey PeerKey) error {
	f.keys[peerKey.Key] = peerKey
	return nil
}

func (f *fakeKeyStore) RemoveKey(key Key) error {
	delete(f.keys, key)
	return nil
}

func TestManagerMirrorsStoreAndRepository(t *testing.T) {
	store := &fakeKeyStore{keys: make(map[Key]PeerKey)}
	repo := NewRepository()
	m := NewManager(store, repo)

	pk, err := m.AddPeerKey(0)
	require.NoError(t, err)
	require.NotNil(t, repo.Get(pk.Key))
	require.Contains(t, store.keys, pk.Key)

	require.NoError(t, m.RemovePeerKey(pk.Key))
	require.Nil(t, repo.Get(pk.Key))
	require.NotContains(t, store.keys, pk.Key)

	require.NoError(t, store.AddKey(PeerKey{Key: "YZSl4lMZupRuOpSRC3krIKR5BPB14nrJ"}))
	require.NoError(t, m.LoadKeysFromDatabase())
	require.Equal(t, 1, repo.Len())
}
