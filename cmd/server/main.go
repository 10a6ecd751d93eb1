package main

import (
	"context"
	"flag"
	"log"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/ruquant/karoot-singapore/api/grpcserver"
	"github.com/ruquant/karoot-singapore/infra/kafka"
	"github.com/ruquant/karoot-singapore/infra/outbox"
	"github.com/ruquant/karoot-singapore/infra/sequence"
	"github.com/ruquant/karoot-singapore/infra/state"
	"github.com/ruquant/karoot-singapore/infra/wal"
	"github.com/ruquant/karoot-singapore/jobs/broadcaster"
	"github.com/ruquant/karoot-singapore/service"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "state store directory")
		walDir     = flag.String("wal", "./wal", "operation log directory")
		outboxDir  = flag.String("outbox", "./outbox", "fill outbox directory")
		snapDir    = flag.String("snapshot-dir", "./snapshots", "snapshot directory")
		listen     = flag.String("listen", ":50051", "gRPC listen address")
		brokers    = flag.String("brokers", "", "kafka brokers, comma separated (empty disables publishing)")
		fillsTopic = flag.String("fills-topic", "book.fills", "kafka topic for executed fills")
		ticksTopic = flag.String("ticks-topic", "book.ticks", "kafka topic for best-offer ticks")
		snapEvery  = flag.Duration("snapshot-interval", 10*time.Minute, "snapshot cadence")
		walSegSize = flag.Uint64("wal-segment-size", 64<<20, "WAL segment size in bytes")
		walSegDur  = flag.Duration("wal-segment-duration", time.Hour, "WAL segment rotation age")
	)
	flag.Parse()

	// ---------------- Durable state ----------------

	db, err := state.Open(*dataDir)
	if err != nil {
		log.Fatalf("state init failed: %v", err)
	}
	defer db.Close()

	w, err := wal.Open(wal.Config{
		Dir:             *walDir,
		SegmentSize:     *walSegSize,
		SegmentDuration: *walSegDur,
	})
	if err != nil {
		log.Fatalf("wal init failed: %v", err)
	}
	defer w.Close()

	ob, err := outbox.Open(*outboxDir)
	if err != nil {
		log.Fatalf("outbox init failed: %v", err)
	}
	defer ob.Close()

	// ---------------- Kafka ----------------

	var ticker *kafka.Producer
	var brokerList []string
	if *brokers != "" {
		brokerList = strings.Split(*brokers, ",")
		ticker = kafka.NewProducer(brokerList, *ticksTopic)
		defer ticker.Close()
	}

	// ---------------- Service ----------------

	seqGen := sequence.New(w.LastSeq())
	svc := service.New(db, w, seqGen, ob, ticker)

	// ---------------- Recovery ----------------

	if err := svc.RestoreFromSnapshot(*snapDir); err != nil {
		log.Fatalf("snapshot restore failed: %v", err)
	}
	if err := svc.ReplayFromWAL(*walDir); err != nil {
		log.Fatalf("wal replay failed: %v", err)
	}

	// ---------------- Background jobs ----------------

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.StartSnapshotJob(ctx, *snapDir, *walDir, *snapEvery)

	if len(brokerList) > 0 {
		bc, err := broadcaster.New(ob, brokerList, *fillsTopic)
		if err != nil {
			log.Fatalf("broadcaster init failed: %v", err)
		}
		defer bc.Close()
		bc.Start(ctx)
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatalf("listen failed: %v", err)
	}

	grpcSrv := grpc.NewServer(grpc.ForceServerCodec(grpcserver.Codec{}))
	grpcserver.Register(grpcSrv, grpcserver.NewServer(svc))

	log.Printf("karoot engine listening on %s", *listen)
	if err := grpcSrv.Serve(lis); err != nil {
		log.Fatalf("gRPC server exited: %v", err)
	}
}
