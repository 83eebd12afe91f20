package scaler

// logContainerEvents surfaces orchestrator events in the scaler log
func (s *Scaler) logContainerEvents() {
	for s.sleep(containerEventsInterval) {
		for _, message := range s.controller.NewEvents() {
			s.logger.Warn().Str("event", message).Msg("Container event")
		}
	}
}
