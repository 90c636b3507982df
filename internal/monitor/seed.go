package monitor

import (
	"reflect"
	"time"

	"github.com/google/uuid"

	"sitewatch/internal/models"
)

// SeedResult counts the effect of SeedSites.
type SeedResult struct {
	Added   int
	Updated int
	Removed int
	// Stale lists removed and retargeted sites, whose stored heartbeats
	// belong to a target that is gone.
	Stale []string
}

// Changed reports whether the state was modified.
func (r SeedResult) Changed() bool {
	return r.Added+r.Updated+r.Removed > 0
}

// target holds the definition fields that decide what a probe talks to.
type target struct {
	MonitorType              models.MonitorType
	URL                      string
	Method                   string
	Headers                  map[string]string
	Body                     string
	ExpectedCodes            []int
	ResponseKeyword          string
	ResponseForbiddenKeyword string
	DNSRecordType            string
	DNSExpectedValue         string
	TCPHost                  string
	TCPPort                  int
	DBHost                   string
	DBPort                   int
	MQTTHost                 string
	MQTTPort                 int
	PushTimeoutMinutes       int
}

func targetOf(s models.Site) target {
	return target{
		MonitorType:              s.MonitorType,
		URL:                      s.URL,
		Method:                   s.Method,
		Headers:                  s.Headers,
		Body:                     s.Body,
		ExpectedCodes:            s.ExpectedCodes,
		ResponseKeyword:          s.ResponseKeyword,
		ResponseForbiddenKeyword: s.ResponseForbiddenKeyword,
		DNSRecordType:            s.DNSRecordType,
		DNSExpectedValue:         s.DNSExpectedValue,
		TCPHost:                  s.TCPHost,
		TCPPort:                  s.TCPPort,
		DBHost:                   s.DBHost,
		DBPort:                   s.DBPort,
		MQTTHost:                 s.MQTTHost,
		MQTTPort:                 s.MQTTPort,
		PushTimeoutMinutes:       s.PushTimeoutMinutes,
	}
}

// SeedSites makes the state's site list match defs. New sites start
// unknown, existing sites keep their runtime fields, and sites missing from
// defs are removed. Changing what a site probes resets it to unknown and
// drops what was learned about the old target. Push sites without a token
// get a generated one.
func SeedSites(state *models.MonitorState, defs []models.Site, now time.Time) SeedResult {
	var res SeedResult
	existing := make(map[string]models.Site, len(state.Sites))
	for _, s := range state.Sites {
		existing[s.ID] = s
	}

	sites := make([]models.Site, 0, len(defs))
	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		seen[def.ID] = struct{}{}
		cur, ok := existing[def.ID]
		if !ok {
			site := def
			site.Status = models.StatusUnknown
			site.ClearPending()
			if site.CreatedAt == 0 {
				site.CreatedAt = now.UnixMilli()
			}
			if site.MonitorType == models.MonitorPush && site.PushToken == "" {
				site.PushToken = uuid.NewString()
			}
			sites = append(sites, site)
			res.Added++
			continue
		}

		next := cur
		next.Name = def.Name
		next.GroupID = def.GroupID
		next.SortOrder = def.SortOrder
		applyTarget(&next, targetOf(def))
		if def.PushToken != "" {
			next.PushToken = def.PushToken
		}
		if next.MonitorType == models.MonitorPush && next.PushToken == "" {
			next.PushToken = uuid.NewString()
		}
		if !reflect.DeepEqual(targetOf(cur), targetOf(next)) {
			next.Status = models.StatusUnknown
			next.StatusRaw = ""
			next.ClearPending()
			next.ResponseTime = 0
			next.SSLCert = nil
			next.SSLCertLastCheck = 0
			next.LastHeartbeat = 0
			next.PushLatency = 0
			delete(state.CertificateAlerts, next.ID)
			res.Stale = append(res.Stale, next.ID)
		}
		if !reflect.DeepEqual(cur, next) {
			res.Updated++
		}
		sites = append(sites, next)
	}
	for _, s := range state.Sites {
		if _, ok := seen[s.ID]; !ok {
			res.Removed++
			res.Stale = append(res.Stale, s.ID)
		}
	}
	state.Sites = sites
	return res
}

func applyTarget(s *models.Site, t target) {
	s.MonitorType = t.MonitorType
	s.URL = t.URL
	s.Method = t.Method
	s.Headers = t.Headers
	s.Body = t.Body
	s.ExpectedCodes = t.ExpectedCodes
	s.ResponseKeyword = t.ResponseKeyword
	s.ResponseForbiddenKeyword = t.ResponseForbiddenKeyword
	s.DNSRecordType = t.DNSRecordType
	s.DNSExpectedValue = t.DNSExpectedValue
	s.TCPHost = t.TCPHost
	s.TCPPort = t.TCPPort
	s.DBHost = t.DBHost
	s.DBPort = t.DBPort
	s.MQTTHost = t.MQTTHost
	s.MQTTPort = t.MQTTPort
	s.PushTimeoutMinutes = t.PushTimeoutMinutes
}

// FindPushSite returns the push site owning token, or nil.
func FindPushSite(state *models.MonitorState, token string) *models.Site {
	if token == "" {
		return nil
	}
	for i := range state.Sites {
		s := &state.Sites[i]
		if s.MonitorType == models.MonitorPush && s.PushToken == token {
			return s
		}
	}
	return nil
}
