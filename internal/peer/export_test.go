package peer

// Buffered returns the number of candidates waiting for a remote description.
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Len()
}
