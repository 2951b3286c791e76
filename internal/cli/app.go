// Package cli implements ev2ctl, an operator console for the collection API.
//
// Every command drives a collection.Collection the same way an interactive
// view would: queries, field edits and bulk actions go through the
// controller, which is confined to an eventloop.Loop owned by the command.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"k8s.io/utils/clock"

	"github.com/JonMunkholm/ev2/internal/apiclient"
	"github.com/JonMunkholm/ev2/internal/collection"
	"github.com/JonMunkholm/ev2/internal/config"
	"github.com/JonMunkholm/ev2/internal/eventloop"
	"github.com/JonMunkholm/ev2/internal/i18n"
	"github.com/JonMunkholm/ev2/internal/precision"
)

// Backend is the server as seen by the CLI.
type Backend interface {
	Collections(ctx context.Context) ([]apiclient.CollectionInfo, error)
	Describe(ctx context.Context, key string) (apiclient.CollectionInfo, error)
	API(key string) collection.API
}

// ConnectFunc builds a Backend from the loaded configuration.
type ConnectFunc func(cfg *config.ClientConfig, log *slog.Logger) (Backend, error)

// clientBackend adapts *apiclient.Client.
type clientBackend struct {
	*apiclient.Client
}

func (b clientBackend) API(key string) collection.API {
	return b.Collection(key)
}

// Connect is the production ConnectFunc.
func Connect(cfg *config.ClientConfig, log *slog.Logger) (Backend, error) {
	c, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.APIURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}
	return clientBackend{c}, nil
}

// app holds what every command needs once flags and environment are loaded.
type app struct {
	cfg     *config.ClientConfig
	log     *slog.Logger
	backend Backend
	tr      *i18n.Translator
	clock   clock.WithDelayedExecution
}

func (a *app) policy() precision.Policy {
	if a.cfg.Precision == config.NoPrecision {
		return precision.None
	}
	return precision.Places(a.cfg.Precision)
}

// view is one opened collection with the loop that owns it.
type view struct {
	info apiclient.CollectionInfo
	loop *eventloop.Loop
	coll *collection.Collection
}

// open describes key on the server and builds its controller. Nothing is
// fetched yet. Notifications go to w.
func (a *app) open(ctx context.Context, key string, w io.Writer) (*view, error) {
	info, err := a.backend.Describe(ctx, key)
	if err != nil {
		return nil, err
	}

	loop := eventloop.New(a.clock)
	coll := collection.New(loop, a.backend.API(key), collection.Options{
		Schema:      info.Schema(),
		PageSize:    a.cfg.PageSize,
		SearchDelay: a.cfg.SearchDelay,
		Precision:   a.policy(),
		Logger:      a.log,
		Notifier:    &printNotifier{w: w},
		Translator:  a.tr,
	})
	return &view{info: info, loop: loop, coll: coll}, nil
}

func (v *view) close() {
	v.coll.Close()
	v.loop.RunPending()
}

// await drives the view's loop on the calling goroutine until f resolves.
func await[T any](ctx context.Context, v *view, f *eventloop.Future[T]) (T, error) {
	return eventloop.Await(ctx, v.loop, f)
}

// printNotifier writes controller notifications as prefixed lines.
type printNotifier struct {
	w io.Writer
}

func (n *printNotifier) ShowSuccess(msg string) { n.print("ok", msg) }
func (n *printNotifier) ShowError(msg string)   { n.print("error", msg) }
func (n *printNotifier) ShowWarning(msg string) { n.print("warning", msg) }
func (n *printNotifier) ShowInfo(msg string)    { n.print("info", msg) }

func (n *printNotifier) print(level, msg string) {
	_, _ = fmt.Fprintf(n.w, "%s: %s\n", level, msg)
}
