package monitorscheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pulsewatch/internal/monitoralert"
	"pulsewatch/internal/monitorcfg"
	"pulsewatch/internal/monitormetrics"
	"pulsewatch/internal/monitorprobe"
	"pulsewatch/pkg/monitor"
)

// processTarget runs the full per-target pipeline for one due target:
// auto-disable check, probe dispatch, metadata/region/SSL refresh, status
// transition, telemetry sampling, alert decision, and mutation admission
// into Sink B (spec.md §4.1, §4.2).
func (s *Scheduler) processTarget(ctx context.Context, target monitor.Target, cfg monitorcfg.Config, caches *monitoralert.TickCaches) {
	now := time.Now()
	settings := s.settings.SettingsFor(target)

	if disable, reason := cfg.ShouldDisableWebsite(target.ConsecutiveFailures, target.FirstFailureAt, now); disable {
		s.sinkB.Admit(disableMutation(target, reason, now))
		reasonClass := "failure_count"
		if target.FirstFailureAt != nil && now.Sub(*target.FirstFailureAt) >= 30*24*time.Hour {
			reasonClass = "downtime"
		}
		monitormetrics.RecordTargetDisabled(reasonClass)
		s.alertMu.Lock()
		err := s.alertGate.NotifyDisabled(ctx, target, settings.Recipients)
		s.alertMu.Unlock()
		if err != nil {
			s.log.Warn("disable notification failed", zap.String("target", target.ID), zap.Error(err))
		}
		return
	}

	kind := monitorprobe.DeriveKind(target.Kind, target.URL)
	opts := monitor.ProbeOptions{
		Kind:                kind,
		Method:              target.Method,
		ExpectedStatusSet:   target.ExpectedStatusSet,
		Headers:             target.Headers,
		Body:                target.Body,
		Validator:           target.Validator,
		ResponseTimeCeiling: target.ResponseTimeCeiling,
		CacheNoCache:        target.CacheNoCache,
	}
	probeStart := time.Now()
	observed := s.probe.Run(ctx, target.URL, opts)
	monitormetrics.RecordProbe(string(kind), string(observed.Status), time.Since(probeStart))

	metadataChanged, metadataFailedAt := s.refreshMetadata(ctx, &target, cfg, now)

	reassignedRegion := target.Region
	if metadataChanged || target.Region == "" {
		reassignedRegion = monitor.NearestRegion(target.Metadata.Lat, target.Metadata.Lon)
	}

	sslRefreshed := s.refreshSSL(ctx, &target, observed, cfg, now, settings.Recipients)

	t := computeTransition(target, observed, cfg, now)
	emitHistory, historyBucketVal := shouldEmitTelemetry(target, observed.Status, cfg, now)

	prevStatus := target.LastStatus
	if pending, ok := s.sinkB.PendingStatus(target.ID); ok {
		prevStatus = pending
	}

	counters := monitoralert.Counters{ConsecutiveFailures: t.NextFailures, ConsecutiveSuccesses: t.NextSuccesses}
	s.alertMu.Lock()
	outcome := decideAlert(ctx, s.alertGate, target, prevStatus, t.ExternalStatus, counters, settings, caches)
	s.alertMu.Unlock()

	mut := buildMutation(target, observed, t, now, emitHistory, historyBucketVal, metadataChanged, metadataFailedAt, reassignedRegion, sslRefreshed, outcome)
	s.sinkB.Admit(mut)

	if emitHistory {
		s.sinkA.Admit(buildTelemetryRow(target, observed, now))
	}
}

// refreshMetadata re-resolves DNS/GeoIP enrichment for target when due,
// merging new fields into target.Metadata in place. It reuses
// CertNeedsRefresh generically since the cadence check has no SSL-specific
// logic (spec.md §4.1, target metadata resolver). A target whose most
// recent attempt failed is retried at TargetMetadataRetry, a much shorter
// cadence than the TargetMetadataTTL success cadence, so a persistently
// failing resolution doesn't get hammered on every single probe but still
// recovers promptly once the failure clears. It returns whether Metadata
// changed, and the failure timestamp to persist (zero if the attempt
// succeeded or was skipped).
func (s *Scheduler) refreshMetadata(ctx context.Context, target *monitor.Target, cfg monitorcfg.Config, now time.Time) (bool, time.Time) {
	if s.resolver == nil {
		return false, time.Time{}
	}

	hasRecentFailure := target.MetadataLastFailedAt.After(target.MetadataLastCheckedAt)
	if hasRecentFailure {
		if !monitorprobe.CertNeedsRefresh(target.MetadataLastFailedAt, cfg.TargetMetadataRetry, now) {
			return false, time.Time{}
		}
	} else if !monitorprobe.CertNeedsRefresh(target.MetadataLastCheckedAt, cfg.TargetMetadataTTL, now) {
		return false, time.Time{}
	}

	meta, err := s.resolver.Resolve(ctx, target.URL)
	if err != nil {
		s.log.Debug("target metadata resolution failed", zap.String("target", target.ID), zap.Error(err))
		return false, now
	}
	return target.Metadata.Merge(meta), time.Time{}
}

// refreshSSL re-captures the certificate snapshot cadence and fires
// TriggerSslAlert when the fingerprint changed (spec.md's Domain Model
// supplement). The probe itself already populated observed.SSLCert when
// applicable; this only decides whether the change is alert-worthy.
func (s *Scheduler) refreshSSL(ctx context.Context, target *monitor.Target, observed monitor.ProbeResult, cfg monitorcfg.Config, now time.Time, recipients []monitoralert.Recipient) bool {
	if observed.SSLCert == nil {
		return false
	}
	if !monitorprobe.CertNeedsRefresh(target.SSLLastCheckedAt, cfg.SecurityMetadataTTL, now) && target.SSLCert != nil {
		return false
	}
	if monitorprobe.CertChanged(target.SSLCert, observed.SSLCert) {
		if err := s.alertGate.EvaluateSSL(ctx, *target, observed.SSLCert, recipients); err != nil {
			s.log.Warn("ssl alert failed", zap.String("target", target.ID), zap.Error(err))
		}
	}
	return true
}
