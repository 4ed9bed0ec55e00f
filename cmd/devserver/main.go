package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/sudip6164/sajilokaam-sub003/internal/config"
	"github.com/sudip6164/sajilokaam-sub003/internal/devserver"
	"github.com/sudip6164/sajilokaam-sub003/internal/models"
)

func main() {
	cfg := config.Load()

	srv := devserver.New()

	// Seed a couple of conversations so the client has something to open
	seed(srv)

	corsOrigins := config.CORSOrigins()
	log.Printf("CORS allowed origins: %v", corsOrigins)

	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("SajiloKaam dev messaging server starting on %s", addr)
	log.Fatal(http.ListenAndServe(addr, srv.Router(corsOrigins)))
}

// seed creates demo conversations mirroring a freelancer's inbox.
func seed(srv *devserver.Server) {
	clients := []struct {
		participant models.Participant
		project     string
	}{
		{models.Participant{ID: "u-101", DisplayName: "Bibek Shrestha", Role: "client"}, "Logo design for bakery"},
		{models.Participant{ID: "u-205", DisplayName: "Anita Gurung", Role: "client"}, "Flutter app milestone 2"},
	}
	for _, c := range clients {
		conv := srv.Svc.CreateConversation(c.participant, c.project)
		log.Printf("Seeded conversation %s with %s", conv.ID, c.participant.DisplayName)
	}
}
