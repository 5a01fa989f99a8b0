package exchange

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// socketDir returns a short temporary directory. t.TempDir paths can push
// socket names past the Unix path length limit.
func socketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "envex")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func startServer(t *testing.T, opts Options) (*Server, string) {
	t.Helper()
	addr := Address("/work/.envexrc.json", t.Name())
	srv, err := Listen(context.Background(), addr, opts)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv, addr
}

func TestAddress(t *testing.T) {
	a := Address("/work/.envexrc.json", "dev")
	b := Address("/work/.envexrc.json", "dev")
	c := Address("/work/.envexrc.json", "prod")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.LessOrEqual(t, len(a), 52)
	assert.GreaterOrEqual(t, len(a), 48)
	for _, r := range a {
		assert.True(t, strings.ContainsRune(alphabet, r), "unexpected rune %q", r)
	}
}

func TestSocketPath(t *testing.T) {
	assert.Equal(t, "/tmp/envex.abc.sock", SocketPath("", "abc"))
	assert.Equal(t, "/run/user/envex.abc.sock", SocketPath("/run/user", "abc"))
}

func TestExchange_GetVar(t *testing.T) {
	opts := Options{Dir: socketDir(t)}
	srv, addr := startServer(t, opts)
	srv.Set("PORT", "3000")
	srv.Set("EMPTY", "")

	client, err := Dial(context.Background(), addr, opts)
	require.NoError(t, err)
	defer client.Close()

	tests := []struct {
		key      string
		expected string
		found    bool
	}{
		{key: "PORT", expected: "3000", found: true},
		{key: "EMPTY", expected: "", found: true},
		{key: "MISSING", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			val, ok, err := client.GetVar(context.Background(), tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.expected, val)
		})
	}

	srv.Set("PORT", "4000")
	val, ok, err := client.GetVar(context.Background(), "PORT")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "4000", val)
}

func TestExchange_Hello(t *testing.T) {
	opts := Options{Dir: socketDir(t)}
	srv, addr := startServer(t, opts)

	client, err := Dial(context.Background(), addr, opts)
	require.NoError(t, err)
	defer client.Close()

	id, err := client.Hello(context.Background())
	require.NoError(t, err)
	assert.Equal(t, srv.ID(), id)
}

func TestExchange_UnknownRequest(t *testing.T) {
	opts := Options{Dir: socketDir(t)}
	_, addr := startServer(t, opts)

	client, err := Dial(context.Background(), addr, opts)
	require.NoError(t, err)
	defer client.Close()

	err = client.Send(context.Background(), "setvar", GetVarArgs{Key: "X"}, nil)
	require.Error(t, err)
	assert.EqualError(t, err, "unknown request: setvar")
	assert.ErrorIs(t, err, ErrUnknownRequest)

	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "setvar", remote.Request)
}

func TestExchange_CustomHandler(t *testing.T) {
	opts := Options{Dir: socketDir(t)}
	srv, addr := startServer(t, opts)
	srv.Handle("fail", func(ctx context.Context, args RawMessage) (any, error) {
		return nil, errors.New("nope")
	})

	client, err := Dial(context.Background(), addr, opts)
	require.NoError(t, err)
	defer client.Close()

	err = client.Send(context.Background(), "fail", nil, nil)
	assert.EqualError(t, err, "nope")
	assert.NotErrorIs(t, err, ErrUnknownRequest)
}

func TestExchange_ConcurrentRequests(t *testing.T) {
	opts := Options{Dir: socketDir(t)}
	srv, addr := startServer(t, opts)
	for _, k := range []string{"A", "B", "C", "D"} {
		srv.Set(k, strings.ToLower(k))
	}

	client, err := Dial(context.Background(), addr, opts)
	require.NoError(t, err)
	defer client.Close()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		key := []string{"A", "B", "C", "D"}[i%4]
		wg.Add(1)
		go func() {
			defer wg.Done()
			val, ok, err := client.GetVar(context.Background(), key)
			assert.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, strings.ToLower(key), val)
		}()
	}
	wg.Wait()
}

func TestDial_Timeout(t *testing.T) {
	opts := Options{Dir: socketDir(t), Timeout: 200 * time.Millisecond}

	start := time.Now()
	_, err := Dial(context.Background(), Address("/nowhere", "dev"), opts)
	require.ErrorIs(t, err, ErrConnectTimeout)
	assert.EqualError(t, err, "client connect timeout")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDial_Cancelled(t *testing.T) {
	opts := Options{Dir: socketDir(t)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Dial(ctx, Address("/nowhere", "dev"), opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListen_AddressInUse(t *testing.T) {
	opts := Options{Dir: socketDir(t)}
	_, addr := startServer(t, opts)

	_, err := Listen(context.Background(), addr, opts)
	assert.ErrorIs(t, err, ErrAddressInUse)
}

func TestListen_ConcurrentStartsClaimOnce(t *testing.T) {
	opts := Options{Dir: socketDir(t)}
	addr := Address("/work/.envexrc.json", "race")

	const starters = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		servers []*Server
		errs    []error
	)
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv, err := Listen(context.Background(), addr, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			servers = append(servers, srv)
		}()
	}
	wg.Wait()
	for _, srv := range servers {
		t.Cleanup(func() { srv.Close() })
	}

	require.Len(t, servers, 1)
	require.Len(t, errs, starters-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrAddressInUse)
	}

	client, err := Dial(context.Background(), addr, opts)
	require.NoError(t, err)
	defer client.Close()
	id, err := client.Hello(context.Background())
	require.NoError(t, err)
	assert.Equal(t, servers[0].ID(), id)
}

func TestListen_LockReleasedOnClose(t *testing.T) {
	opts := Options{Dir: socketDir(t)}
	addr := Address("/work/.envexrc.json", "relock")

	for round := 1; round <= 2; round++ {
		t.Run(fmt.Sprintf("round %d", round), func(t *testing.T) {
			srv, err := Listen(context.Background(), addr, opts)
			require.NoError(t, err)

			_, err = Listen(context.Background(), addr, opts)
			require.ErrorIs(t, err, ErrAddressInUse)

			require.NoError(t, srv.Close())
			_, err = os.Stat(srv.Path())
			assert.True(t, os.IsNotExist(err))
			_, err = os.Stat(LockPath(srv.Path()))
			assert.NoError(t, err)
		})
	}
}

func TestListen_RemovesStaleSocket(t *testing.T) {
	opts := Options{Dir: socketDir(t)}
	addr := Address("/work/.envexrc.json", "stale")
	require.NoError(t, os.WriteFile(SocketPath(opts.Dir, addr), nil, 0o600))

	srv, err := Listen(context.Background(), addr, opts)
	require.NoError(t, err)
	defer srv.Close()

	client, err := Dial(context.Background(), addr, opts)
	require.NoError(t, err)
	defer client.Close()
	_, err = client.Hello(context.Background())
	assert.NoError(t, err)
}

func TestServer_CloseRejectsPending(t *testing.T) {
	opts := Options{Dir: socketDir(t)}
	srv, addr := startServer(t, opts)

	release := make(chan struct{})
	srv.Handle("block", func(ctx context.Context, args RawMessage) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	})

	client, err := Dial(context.Background(), addr, opts)
	require.NoError(t, err)
	defer client.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Send(context.Background(), "block", nil, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, srv.Close())
	close(release)

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pending request was not rejected")
	}

	_, statErr := os.Stat(srv.Path())
	assert.True(t, os.IsNotExist(statErr))

	_, err = client.Hello(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWaitForSocket(t *testing.T) {
	opts := Options{Dir: socketDir(t)}
	addr := Address("/work/.envexrc.json", "late")

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errCh <- WaitForSocket(ctx, addr, opts)
	}()

	time.Sleep(50 * time.Millisecond)
	srv, err := Listen(context.Background(), addr, opts)
	require.NoError(t, err)
	defer srv.Close()

	require.NoError(t, <-errCh)
}

func TestWaitForSocket_Deadline(t *testing.T) {
	opts := Options{Dir: socketDir(t)}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := WaitForSocket(ctx, Address("/nowhere", "dev"), opts)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
