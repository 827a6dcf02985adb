// Package server wires the storage/execution core (bitmap, hashtable,
// txlock, chunkstore, storagedb, fiber, netio, resp, command, snapshot,
// epoch) into a running RESP server, the layer spec.md §3 describes as
// "server — worker wiring" but leaves as connective tissue between the
// other components.
//
// Grounded on the teacher's HTTP server bootstrap (main.go's route/handler
// registration and graceful-shutdown sequencing) for the "own one
// listener, own one scheduling loop, own a registry of in-flight work"
// shape, re-keyed here from one shared net/http.Server to N independent
// workers each owning its own netio.Ring and fiber.Scheduler, per spec.md
// §4.7's "each worker owns a scheduler driving one OS thread pinned to one
// core."
package server

import (
	"kvstore/bitmap"
	"kvstore/command"
	"kvstore/config"
	"kvstore/epoch"
	"kvstore/fiber"
	"kvstore/logger"
	"kvstore/netio"
	"kvstore/storagedb"
)

// maxProtoBulkLen bounds a single RESP bulk string's declared length,
// independent of any particular command's notion of a maximum key size.
const maxProtoBulkLen = 512 * 1024 * 1024

// Worker owns one netio.Ring, one fiber.Scheduler, and a local SPSC slot
// allocator for the connections it alone accepts (spec.md §4.1's SPSC
// variant: "per-worker local connection-slot allocator," a single-writer
// allocator safe because only fibers on this worker's own scheduler — its
// accept fiber and its connection fibers — ever mutate it).
type Worker struct {
	index int

	ring      *netio.Ring
	scheduler *fiber.Scheduler
	slots     *bitmap.SPSC

	db          *storagedb.DB
	registry    *command.Registry
	limits      command.Limits
	cfg         *config.Config
	epoch       *epoch.Reclaimer
	snapshotter command.Snapshotter

	clientIDs *bitmap.MPMC
	server    *Server
}

func newWorker(index int, ring *netio.Ring, db *storagedb.DB, registry *command.Registry, limits command.Limits, cfg *config.Config, rec *epoch.Reclaimer, snapshotter command.Snapshotter, clientIDs *bitmap.MPMC, srv *Server) *Worker {
	return &Worker{
		index:       index,
		ring:        ring,
		scheduler:   fiber.New(index),
		slots:       bitmap.NewSPSC(65536),
		db:          db,
		registry:    registry,
		limits:      limits,
		cfg:         cfg,
		epoch:       rec,
		snapshotter: snapshotter,
		clientIDs:   clientIDs,
		server:      srv,
	}
}

// run starts the worker's accept loop and drives its scheduler until
// stopped. Blocks; intended to run on its own goroutine.
func (w *Worker) run() {
	w.epoch.Register(w.index)
	w.scheduler.Spawn("accept", w.acceptLoop)
	w.scheduler.Run()
}

func (w *Worker) acceptLoop(ctx *fiber.Context) {
	for {
		conn, err := w.ring.SubmitAccept(ctx)
		if err != nil {
			if ctx.Terminated() {
				return
			}
			logger.Warn("worker %d: accept failed: %v", w.index, err)
			continue
		}
		logger.LogConnAccept(w.index, conn.RemoteAddr().String())

		localID, ok := w.slots.GetNextAvailable()
		if !ok {
			logger.Warn("worker %d: local connection slots exhausted", w.index)
			conn.Close()
			continue
		}
		clientID, ok := w.clientIDs.GetNextAvailable()
		if !ok {
			logger.Warn("worker %d: global client id space exhausted", w.index)
			w.slots.Release(localID)
			conn.Close()
			continue
		}

		w.server.registerConn(connInfo{clientID: clientID, worker: w.index, remote: conn.RemoteAddr().String()})
		w.scheduler.Spawn("conn", func(cctx *fiber.Context) {
			w.connectionLoop(cctx, conn, clientID)
			w.slots.Release(localID)
			w.server.unregisterConn(clientID)
		})
	}
}

func (w *Worker) releaseClientID(clientID int) {
	w.clientIDs.Release(clientID)
}

// stop terminates the worker's scheduler and closes its listener so the
// blocked accept goroutine unwinds (spec.md §4.8's note that a terminated
// accept fiber still needs the listener closed to stop leaking).
func (w *Worker) stop() {
	w.ring.Close()
	w.scheduler.Stop()
}
