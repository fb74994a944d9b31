// Command track-plot renders the marker trajectories of a recorded
// tracking session as a PNG.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/banshee-data/fiducial-tracker/internal/db"
	"github.com/banshee-data/fiducial-tracker/internal/fiducial/monitor"
	sqlite "github.com/banshee-data/fiducial-tracker/internal/fiducial/storage/sqlite"
)

func main() {
	dbPath := flag.String("db", "fiducial.db", "SQLite event log path")
	sessionID := flag.String("session", "", "Session ID to plot (newest when empty)")
	out := flag.String("out", "trajectories.png", "Output PNG path")
	flag.Parse()

	if err := plotSession(*dbPath, *sessionID, *out); err != nil {
		log.Fatalf("track-plot: %v", err)
	}
	log.Printf("Wrote %s", *out)
}

func plotSession(dbPath, sessionID, out string) error {
	database, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	sessions := sqlite.NewSessionStore(database.DB)
	var sess *sqlite.Session
	if sessionID == "" {
		all, err := sessions.List()
		if err != nil {
			return err
		}
		if len(all) == 0 {
			return fmt.Errorf("no sessions in %s", dbPath)
		}
		sess = all[0]
	} else {
		sess, err = sessions.Get(sessionID)
		if err != nil {
			return err
		}
	}

	trajs, err := sqlite.NewEventStore(database.DB, sess.SessionID).Trajectories(sess.SessionID)
	if err != nil {
		return err
	}
	title := "Session " + sess.SessionID
	if sess.Label != "" {
		title = sess.Label
	}
	log.Printf("Plotting %d trajectories from session %s", len(trajs), sess.SessionID)
	return monitor.NewTrackPlotter().Save(out, title, trajs)
}
