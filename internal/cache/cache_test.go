package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgarzom/miso4208-project-cypress-executor/internal/telemetry"
)

func cacheErrors() float64 {
	return testutil.ToFloat64(telemetry.SpecCache.WithLabelValues("error"))
}

type fakeStore struct {
	objects map[string][]byte
	calls   []string
	err     error
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	f.calls = append(f.calls, key)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func TestEnsure_FetchesOnceThenHits(t *testing.T) {
	root := t.TempDir()
	store := &fakeStore{objects: map[string][]byte{
		"test-cases/cypress/login.spec.js": []byte("describe('login')"),
	}}
	c := New(root, store, nil)

	first, err := c.Ensure(context.Background(), "login.spec.js")
	require.NoError(t, err)
	second, err := c.Ensure(context.Background(), "login.spec.js")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "login.spec.js"), first)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"test-cases/cypress/login.spec.js"}, store.calls)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "describe('login')", string(data))
}

func TestEnsure_ExistingFileNoFetch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "cart.spec.js"), []byte("x"), 0o644))
	store := &fakeStore{}

	p, err := New(root, store, nil).Ensure(context.Background(), "cart.spec.js")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "cart.spec.js"), p)
	assert.Empty(t, store.calls)
}

func TestEnsure_NestedName(t *testing.T) {
	root := t.TempDir()
	store := &fakeStore{objects: map[string][]byte{
		"test-cases/cypress/shop/cart.spec.js": []byte("x"),
	}}

	p, err := New(root, store, nil).Ensure(context.Background(), "shop/cart.spec.js")

	require.NoError(t, err)
	assert.FileExists(t, p)
}

func TestEnsure_FetchError(t *testing.T) {
	root := t.TempDir()
	store := &fakeStore{err: errors.New("network down")}
	before := cacheErrors()

	_, err := New(root, store, nil).Ensure(context.Background(), "login.spec.js")

	require.ErrorIs(t, err, ErrFetch)
	assert.NoFileExists(t, filepath.Join(root, "login.spec.js"))
	assert.Equal(t, before+1, cacheErrors())
}

func TestEnsure_WriteError(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	// Файл на месте каталога: MkdirAll не сможет создать root.
	require.NoError(t, os.WriteFile(root, []byte("not a dir"), 0o644))
	store := &fakeStore{objects: map[string][]byte{
		"test-cases/cypress/login.spec.js": []byte("x"),
	}}
	before := cacheErrors()

	_, err := New(root, store, nil).Ensure(context.Background(), "login.spec.js")

	assert.ErrorIs(t, err, ErrWrite)
	assert.Equal(t, before+1, cacheErrors())
}

func TestEnsure_FetchedButNotWritten(t *testing.T) {
	root := t.TempDir()
	// Висячая ссылка на месте подкаталога: stat отдаёт ErrNotExist, MkdirAll падает.
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "shop")))
	store := &fakeStore{objects: map[string][]byte{
		"test-cases/cypress/shop/cart.spec.js": []byte("x"),
	}}
	before := cacheErrors()

	_, err := New(root, store, nil).Ensure(context.Background(), "shop/cart.spec.js")

	assert.ErrorIs(t, err, ErrWrite)
	assert.Len(t, store.calls, 1)
	assert.Equal(t, before+1, cacheErrors())
}

func TestEnsure_InvalidName(t *testing.T) {
	store := &fakeStore{}
	c := New(t.TempDir(), store, nil)

	for _, name := range []string{"", "../etc/passwd", "/abs.spec.js"} {
		_, err := c.Ensure(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
	assert.Empty(t, store.calls)
}
