package lib

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// HandleInterrupt exits on SIGINT/SIGTERM. Sessions are held in memory only,
// so their placeholder mappings are deliberately lost on shutdown.
func HandleInterrupt() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Fatal().Msg("process interrupted")
}
