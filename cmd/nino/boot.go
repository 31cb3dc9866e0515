package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"nino/internal/config"
	"nino/internal/contentcache"
	"nino/internal/dbfacade"
	"nino/internal/domain"
	"nino/internal/httpdispatcher"
	"nino/internal/jsruntime"
	"nino/internal/logging"
	"nino/internal/logsink"
	"nino/internal/metrics"
	"nino/internal/notifybus"
	"nino/internal/observability"
	"nino/internal/taskqueue"
	"nino/internal/txsession"
)

// process bundles everything boot() assembles, so run() can shut it down
// cleanly when the context is cancelled.
type process struct {
	db         *dbfacade.Facade
	bus        *notifybus.Bus
	cache      *contentcache.Store
	queue      *taskqueue.Queue
	sink       logsink.Sink
	pool       *jsruntime.Pool
	sessions   []*txsession.Session
	webServer  *http.Server
	metricsSrv *http.Server
	webAddr    string
}

func (p *process) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if p.webServer != nil {
		_ = p.webServer.Shutdown(ctx)
	}
	if p.metricsSrv != nil {
		_ = p.metricsSrv.Shutdown(ctx)
	}
	p.queue.Close()
	p.pool.Wait()
	for _, s := range p.sessions {
		s.Close()
	}
	_ = p.bus.Close()
	_ = p.sink.Close()
	p.db.Close()
	_ = observability.Shutdown(ctx)
}

// boot implements spec.md §6's boot sequence: (1) parse connection
// string (the caller already did this), (2) wait for DB, (3) run the
// bootstrap SQL file if present, (4) load settings, (5) build pools and
// caches, (6) start the isolate pool, (7) call runTranspileOnce, which
// runs no module, (8) start the HTTP listener.
func boot(ctx context.Context, connString string) (*process, error) {
	bootDB, err := waitForDB(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := runBootstrapSQL(ctx, bootDB, programName+".sql"); err != nil {
		bootDB.Close()
		return nil, err
	}

	bootSettings := contentcache.NewSettings(bootDB)
	if err := bootSettings.Reload(ctx); err != nil {
		bootDB.Close()
		return nil, fmt.Errorf("load initial settings: %w", err)
	}

	cfg := config.DefaultConfig()
	cfg.ApplySettings(bootSettings)
	logging.SetLevelFromString(cfg.LogLevel)

	if err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.TracingEnabled,
		Exporter:    cfg.TracingExporter,
		Endpoint:    cfg.TracingEndpoint,
		ServiceName: programName,
		SampleRate:  float64(cfg.TracingSampleRatePct) / 100,
	}); err != nil {
		bootDB.Close()
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// The pool is sized from settings that can only be read once a
	// connection exists, so boot reopens it here rather than guessing a
	// size up front, per §4.1's core_thread_count + js_thread_count default.
	bootDB.Close()
	poolSize := dbfacade.PoolSizeOrDefault(cfg.DBConnectionPoolSize, cfg.CoreThreadCount, cfg.JSThreadCount)
	db, err := dbfacade.Open(ctx, connString, poolSize)
	if err != nil {
		return nil, fmt.Errorf("reopen sized pool: %w", err)
	}

	settings := contentcache.NewSettings(db)
	if err := settings.Reload(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("reload settings on sized pool: %w", err)
	}

	requests := contentcache.NewRequests(db)
	responses := contentcache.NewResponses(db)
	cache, err := contentcache.NewStore(ctx, settings, requests, responses)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build caches: %w", err)
	}

	bus := notifybus.New(db.Pool(), programName)
	go bus.Run(ctx)
	go cache.Watch(ctx, bus.Subscribe(ctx))
	go metrics.WatchDBPool(ctx, db.Pool(), domain.MainAlias)

	sink := logsink.NewPostgresBatchSink(db, logsink.DefaultConfig())

	loader := jsruntime.NewLoader(responses)
	queueCapacity := cfg.JSThreadCount * 4
	if queueCapacity < 1 {
		queueCapacity = 1
	}
	queue := taskqueue.New(queueCapacity)

	jwtSecret := cfg.SystemID + ":" + programName // process-local secret per spec.md's "(program name)" note, salted with the system id
	isolatePool := jsruntime.NewPool(cfg.JSThreadCount, queue, loader, bus, sink, jwtSecret, programName)

	sessions := make([]*txsession.Session, cfg.JSThreadCount)
	for i := range sessions {
		sessions[i] = txsession.Start(ctx, db, connString)
	}
	isolatePool.Start(ctx, sessions)

	runTranspileOnce(ctx, isolatePool)

	dispatcher := &httpdispatcher.Dispatcher{
		Settings:    settings,
		Requests:    requests,
		Responses:   responses,
		Queue:       queue,
		JWTSecret:   jwtSecret,
		ProgramName: programName,
	}
	webAddr := fmt.Sprintf(":%d", cfg.WebServerPort)
	webServer := httpdispatcher.StartServer(webAddr, dispatcher)

	var metricsSrv *http.Server
	if cfg.DebugPort > 0 {
		metricsSrv = metrics.StartServer(fmt.Sprintf("127.0.0.1:%d", cfg.DebugPort))
	}

	return &process{
		db:         db,
		bus:        bus,
		cache:      cache,
		queue:      queue,
		sink:       sink,
		pool:       isolatePool,
		sessions:   sessions,
		webServer:  webServer,
		metricsSrv: metricsSrv,
		webAddr:    webAddr,
	}, nil
}

// waitForDB implements §6(2): retry every 2s until the DB is reachable.
// There is no retry budget; a broken DSN blocks forever, same as a
// process that should never come up healthy without its database.
func waitForDB(ctx context.Context, connString string) (*dbfacade.Facade, error) {
	for {
		db, err := dbfacade.Open(ctx, connString, 0)
		if err == nil {
			return db, nil
		}
		logging.Op().Warn("database not reachable, retrying", "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// runBootstrapSQL implements §6(3): if path exists, execute it
// statement-by-statement, splitting on lines ending ';'.
func runBootstrapSQL(ctx context.Context, db *dbfacade.Facade, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open bootstrap sql %s: %w", path, err)
	}
	defer f.Close()

	conn, err := db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire bootstrap connection: %w", err)
	}
	defer conn.Release()

	var stmt strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		stmt.WriteString(line)
		stmt.WriteByte('\n')
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			sql := strings.TrimSpace(stmt.String())
			if sql != "" {
				if _, err := conn.Exec(ctx, sql); err != nil {
					return fmt.Errorf("bootstrap statement failed: %w\n%s", err, sql)
				}
			}
			stmt.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read bootstrap sql: %w", err)
	}
	return nil
}

// runTranspileOnce is the boot step for transpilation, and it does
// nothing: no "transpile" module is run at boot, even when one is
// registered, and nino_response.javascript is not populated here. nino has
// no separate throwaway isolate; a NOTIFY on the program channel reaches
// every isolate's onMessage as a message task, so a script can run its own
// transpile step on a marker payload there.
func runTranspileOnce(ctx context.Context, pool *jsruntime.Pool) {
	_ = ctx
	_ = pool
	// No "transpile" response is registered by default.
}

