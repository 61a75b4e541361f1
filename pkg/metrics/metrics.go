package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pdfshare", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pdfshare", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter."},
		[]string{"limiter"},
	)
	ShareLinksGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "pdfshare", Name: "share_links_generated_total", Help: "Number of share tokens issued."},
	)
	ShareResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pdfshare", Name: "share_resolutions_total", Help: "Share token resolutions by outcome (valid, expired, not_found, error)."},
		[]string{"outcome"},
	)
	ShareTokensSwept = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "pdfshare", Name: "share_tokens_swept_total", Help: "Number of long-expired share tokens removed."},
	)
	CommentsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pdfshare", Name: "comments_published_total", Help: "Number of comments appended by author kind."},
		[]string{"author_kind"},
	)
	ActiveSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "pdfshare", Name: "comment_subscriptions_active", Help: "Number of open live comment subscriptions."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(ShareLinksGenerated)
	reg.MustRegister(ShareResolutions)
	reg.MustRegister(ShareTokensSwept)
	reg.MustRegister(CommentsPublished)
	reg.MustRegister(ActiveSubscriptions)
}
