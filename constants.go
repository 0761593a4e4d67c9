package server

import (
	"time"

	"github.com/dimaspandu/pokecat-hunt/internal/net/proto"
)

const (
	ProtocolVersion = proto.Version

	defaultJournalCapacity = 4096
	defaultJournalMaxAge   = 30 * time.Minute
	defaultLockRate        = 5.0
	defaultLockBurst       = 10
)
