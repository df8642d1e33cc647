package session

import (
	"fmt"
	"log"

	"github.com/lifeline-share/lifeline/internal/client"
	"github.com/lifeline-share/lifeline/internal/location"
)

// relay forwards every fix of w as one update request. Sends are
// fire-and-forget and not serialized: a slow request never delays the next
// fix, so updates may reach the server out of order.
func (c *Controller) relay(w *location.Watch, rep Reporter, userID, incidentID string) {
	fixes, errs := w.Fixes(), w.Errors()
	for fixes != nil || errs != nil {
		select {
		case f, ok := <-fixes:
			if !ok {
				fixes = nil
				continue
			}
			if !c.recordFix(w, f) {
				continue
			}
			c.emit(Event{Message: fmt.Sprintf("Sending location %.5f,%.5f acc:%g", f.Latitude, f.Longitude, f.Accuracy)})
			go c.sendFix(rep, userID, incidentID, f)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("geolocation error: %v", err)
			c.emit(Event{
				Message: "Geolocation error: " + err.Error(),
				Status:  "Geolocation error or permission denied.",
				Err:     err,
			})
		}
	}
}

func (c *Controller) sendFix(rep Reporter, userID, incidentID string, f location.Fix) {
	defer c.inflight.Done()

	err := rep.UpdateIncident(c.ctx, client.IncidentUpdate{
		UserID:     userID,
		IncidentID: incidentID,
		Lat:        f.Latitude,
		Lon:        f.Longitude,
		Accuracy:   f.Accuracy,
		Timestamp:  client.FormatTimestamp(f.Timestamp),
	})

	c.mu.Lock()
	if err != nil {
		c.stats.UpdatesFailed++
	} else {
		c.stats.UpdatesSent++
	}
	c.mu.Unlock()

	if err != nil {
		log.Printf("location update failed: %v", err)
		c.emit(Event{
			Message: "Error sending location: " + err.Error(),
			Status:  "Network error while sharing.",
			Err:     err,
		})
		return
	}
	c.emit(Event{
		Status: fmt.Sprintf("Sharing: %.5f, %.5f (acc %gm)", f.Latitude, f.Longitude, f.Accuracy),
		Fix:    &f,
	})
}

// recordFix counts f and registers its send if w is still the active watch.
// Fixes buffered before a stop are discarded.
func (c *Controller) recordFix(w *location.Watch, f location.Fix) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.watch != w {
		return false
	}
	c.stats.FixesSeen++
	c.stats.LastFix = &f
	c.inflight.Add(1)
	return true
}
