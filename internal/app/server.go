package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"blinky/internal/event"
	"blinky/internal/ipc"
	"blinky/internal/model"
)

const ioTimeout = 5 * time.Second

// setupSocket checks for an existing socket and creates the listener
func (a *App) setupSocket() error {
	if _, err := os.Stat(a.socketPath); err == nil {
		conn, err := net.DialTimeout("unix", a.socketPath, time.Second)
		if err == nil {
			conn.Close()
			return fmt.Errorf("socket %s already active, another instance might be running", a.socketPath)
		}
		a.log.Warn().Str("socket", a.socketPath).Msg("removing stale socket file")
		if err := os.Remove(a.socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket file %s: %w", a.socketPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking socket file %s: %w", a.socketPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(a.socketPath), 0700); err != nil {
		return fmt.Errorf("failed to create socket dir: %w", err)
	}
	addr, err := net.ResolveUnixAddr("unix", a.socketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve unix addr %s: %w", a.socketPath, err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", a.socketPath, err)
	}
	if err := os.Chmod(a.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set permissions on socket %s: %w", a.socketPath, err)
	}

	a.listener = listener
	a.log.Info().Str("socket", a.socketPath).Msg("listening for commands")
	return nil
}

// listenForCommands accepts connections and handles each in its own goroutine
func (a *App) listenForCommands() {
	defer a.log.Debug().Msg("socket listener stopped")

	for {
		conn, err := a.listener.AcceptUnix()
		if err != nil {
			select {
			case <-a.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			a.log.Warn().Err(err).Msg("failed to accept connection")
			time.Sleep(100 * time.Millisecond)
			continue
		}
		a.wg.Go(func() { a.handleConnection(conn) })
	}
}

// handleConnection reads one command and answers it. A subscribe command
// keeps the connection open as an event stream.
func (a *App) handleConnection(conn *net.UnixConn) {
	defer conn.Close()

	log := a.log.With().Str("conn", uuid.NewString()).Logger()
	_ = conn.SetReadDeadline(time.Now().Add(ioTimeout))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var cmd ipc.Command
	if err := decoder.Decode(&cmd); err != nil {
		if !errors.Is(err, io.EOF) {
			log.Warn().Err(err).Msg("failed to decode command")
		}
		_ = conn.SetWriteDeadline(time.Now().Add(ioTimeout))
		_ = encoder.Encode(ipc.Response{Success: false, Message: "invalid argument: failed to decode command: " + err.Error()})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	log.Debug().Str("command", cmd.Name).Msg("received command")

	if cmd.Name == ipc.CmdSubscribe {
		a.streamEvents(conn, encoder, cmd, log)
		return
	}

	response := a.processCommand(a.ctx, cmd)
	_ = conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if err := encoder.Encode(response); err != nil {
		log.Warn().Err(err).Str("command", cmd.Name).Msg("failed to send response")
	}
}

func (a *App) streamEvents(conn *net.UnixConn, encoder *json.Encoder, cmd ipc.Command, log zerolog.Logger) {
	var args ipc.SubscribeArgs
	filter, err := subscribeFilter(cmd.Args, &args)
	_ = conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if err != nil {
		_ = encoder.Encode(errorResponse(err, nil))
		return
	}

	events, unsubscribe := a.bus.Subscribe(event.DefaultBuffer)
	defer unsubscribe()
	if err := encoder.Encode(ipc.Response{Success: true, Message: "subscribed"}); err != nil {
		return
	}
	log.Info().Strs("types", args.Types).Msg("event subscriber connected")
	defer log.Info().Msg("event subscriber disconnected")

	// the client sends nothing more; a read returning means it went away
	gone := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, conn)
		close(gone)
	}()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-gone:
			return
		case e, ok := <-events:
			if !ok {
				log.Warn().Msg("subscriber fell behind and was dropped")
				return
			}
			if len(filter) > 0 && !filter[e.Type] {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(ioTimeout))
			if err := encoder.Encode(e); err != nil {
				log.Debug().Err(err).Msg("failed to write event")
				return
			}
		}
	}
}

func subscribeFilter(raw any, args *ipc.SubscribeArgs) (map[event.Type]bool, error) {
	if err := decodeArgs(raw, args); err != nil {
		return nil, err
	}
	filter := map[event.Type]bool{}
	for _, name := range args.Types {
		t := event.Type(name)
		if !t.Valid() {
			return nil, &model.ValidationError{Field: "types", Reason: fmt.Sprintf("unknown event type %q", name)}
		}
		filter[t] = true
	}
	return filter, nil
}
