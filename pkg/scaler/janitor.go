package scaler

import (
	"context"
)

// flushServiceStatus removes status entries that refer to containers the
// orchestrator no longer reports. A host must be missing on two
// consecutive passes before its entry is dropped, tolerating brief
// listing races.
func (s *Scaler) flushServiceStatus() {
	suspect := make(map[string]struct{})
	for s.sleep(statusFlushInterval) {
		s.flushServiceStatusOnce(suspect)
	}
}

func (s *Scaler) flushServiceStatusOnce(suspect map[string]struct{}) {
	ctx := context.Background()
	live := s.controller.GetRunningContainerNames()

	hosts, err := s.statusTable.Keys(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list status table")
		return
	}

	for _, host := range hosts {
		if _, ok := live[host]; ok {
			delete(suspect, host)
			continue
		}
		if _, flagged := suspect[host]; flagged {
			if err := s.statusTable.Pop(ctx, host); err != nil {
				s.logger.Warn().Err(err).Str("host", host).Msg("Failed to drop status entry")
				continue
			}
			delete(suspect, host)
			s.logger.Debug().Str("host", host).Msg("Dropped status entry for missing container")
		} else {
			suspect[host] = struct{}{}
		}
	}
}
