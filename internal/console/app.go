// Package console is the operator REPL. It opens the edge's outbox database
// directly and talks to the running edge over its gRPC health service.
package console

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/boda/internal/common"
	"github.com/dmitrijs2005/boda/internal/config"
	"github.com/dmitrijs2005/boda/internal/delivery"
	"github.com/dmitrijs2005/boda/internal/logging"
	"github.com/dmitrijs2005/boda/internal/models"
	"github.com/dmitrijs2005/boda/internal/resync"
	"github.com/dmitrijs2005/boda/internal/server/auth"
	gs "github.com/dmitrijs2005/boda/internal/server/grpc"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Outbox is the outbox surface the console uses.
type Outbox interface {
	ListPending(ctx context.Context) ([]models.OutboxEntry, error)
	DeleteByID(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	outbox      Outbox
	coordinator *resync.Coordinator
	health      healthpb.HealthClient
	conn        *grpc.ClientConn
}

// NewApp builds a console over an open outbox.
func NewApp(c *config.Config, ob Outbox, l logging.Logger) (*App, error) {
	conn, err := grpc.NewClient(dialTarget(c.GRPCAddr),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, err
	}

	dc := delivery.NewClient(c.SubmissionEndpoint, c.DeliveryTimeout, l)

	return &App{
		config:      c,
		logger:      l.With("module", "console"),
		outbox:      ob,
		coordinator: resync.NewCoordinator(ob, dc, l),
		health:      healthpb.NewHealthClient(conn),
		conn:        conn,
	}, nil
}

// dialTarget fills in a loopback host for listen-style addresses like ":50051".
func dialTarget(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host != "" {
		return addr
	}
	return net.JoinHostPort("127.0.0.1", port)
}

func (a *App) Close() error {
	return a.conn.Close()
}

// Run starts the REPL on stdin.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	printlnFn("boda console. Type 'help' for commands.")
	runREPL(ctx, a, func() string { return a.statusLine(ctx) }, bufio.NewScanner(os.Stdin))
}

func (a *App) statusLine(ctx context.Context) string {
	n, err := a.outbox.Count(ctx)
	if err != nil {
		return "outbox unavailable"
	}
	return fmt.Sprintf("%d pending", n)
}

func (a *App) Pending(ctx context.Context) error {
	entries, err := a.outbox.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		printlnFn("Outbox is empty")
		return nil
	}
	for _, e := range entries {
		printlnFn(fmt.Sprintf("#%d  %s  %s  attendance=%s guests=%s",
			e.ID,
			e.EnqueuedAt.Local().Format(time.DateTime),
			e.Payload.Get("name"),
			e.Payload.Get("attendance"),
			e.Payload.Get("guests"),
		))
	}
	return nil
}

func (a *App) Resync(ctx context.Context) error {
	summary, err := a.coordinator.Resync(ctx)
	printlnFn(fmt.Sprintf("Delivered %d, still pending %d", summary.Succeeded, summary.Failed))
	return err
}

func (a *App) Drop(ctx context.Context, rawID string) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", rawID)
	}
	if err := a.outbox.DeleteByID(ctx, id); err != nil {
		return err
	}
	a.logger.Info(ctx, "entry dropped", "id", id)
	printlnFn(fmt.Sprintf("Dropped #%d", id))
	return nil
}

func (a *App) Status(ctx context.Context) error {
	for _, svc := range []string{"", gs.CacheService, gs.OutboxService} {
		cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		resp, err := a.health.Check(cctx, &healthpb.HealthCheckRequest{Service: svc})
		cancel()

		name := svc
		if name == "" {
			name = "edge"
		}
		if err != nil {
			printlnFn(fmt.Sprintf("%-12s unreachable (%v)", name, err))
			continue
		}
		printlnFn(fmt.Sprintf("%-12s %s", name, resp.GetStatus()))
	}
	return nil
}

func (a *App) Token(context.Context) error {
	tok, err := auth.GenerateToken("console", []byte(a.config.SecretKey), a.config.AdminTokenValidity)
	if err != nil {
		return err
	}
	printlnFn(tok)
	printlnFn(fmt.Sprintf("Valid for %s. Sync requests use tag %q.", a.config.AdminTokenValidity, common.SyncTag))
	return nil
}
