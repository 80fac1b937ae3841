package mw

import (
	"net/http"

	"github.com/dlcy/iptv-hunan/internal/logger"
	"github.com/dlcy/iptv-hunan/internal/metrics"
	"github.com/dlcy/iptv-hunan/internal/utils"
)

// AllowClients limits the household API to remote controls and panels on the
// listed addresses or networks. An empty list lets every client through.
// With trustProxy the client address is taken from X-Forwarded-For.
func AllowClients(networks []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(networks)
	if m.IsEmpty() {
		log.Debug("no client networks configured, API open to all clients")
		return func(next http.Handler) http.Handler { return next }
	}
	log.Debug("API restricted to client networks",
		logger.Int("rules", len(networks)),
		logger.Bool("trust_proxy", trustProxy))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if m.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}
			metrics.RejectedRequests.WithLabelValues("client").Inc()
			log.Warn("rejected request from unknown client",
				logger.String("ip", ip),
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path))
			http.Error(w, "client not allowed to control this player", http.StatusForbidden)
		})
	}
}
