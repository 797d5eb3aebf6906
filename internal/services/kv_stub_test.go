package services

import (
	"context"
	"errors"
	"sync"
)

type stubKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	failOn map[string]bool
	writes int
}

func newStubKV() *stubKV {
	return &stubKV{data: map[string][]byte{}, failOn: map[string]bool{}}
}

var errStubWrite = errors.New("stub write failure")

func (s *stubKV) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), b...), nil
}

func (s *stubKV) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[key] {
		return errStubWrite
	}
	s.data[key] = append([]byte(nil), value...)
	s.writes++
	return nil
}

func (s *stubKV) SetMany(_ context.Context, values map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range values {
		if s.failOn[k] {
			return errStubWrite
		}
	}
	for k, v := range values {
		s.data[k] = append([]byte(nil), v...)
		s.writes++
	}
	return nil
}

func (s *stubKV) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *stubKV) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}
