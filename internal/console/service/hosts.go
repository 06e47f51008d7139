package service

import (
	"context"
	"sort"
)

// HostDenylist: операторский список запрещенных хостов (engine.HostDenylist).
type HostDenylist interface {
	Deny(ctx context.Context, host string) error
	Allow(ctx context.Context, host string) error
	Hosts() []string
}

type HostService struct {
	denylist HostDenylist
}

func NewHostService(d HostDenylist) *HostService {
	return &HostService{denylist: d}
}

// List возвращает запрещенные хосты в алфавитном порядке.
func (s *HostService) List() []string {
	hosts := s.denylist.Hosts()
	sort.Strings(hosts)
	return hosts
}

// Deny запрещает хост на всех инстансах (через Redis-сигнал).
func (s *HostService) Deny(ctx context.Context, host string) error {
	return s.denylist.Deny(ctx, host)
}

func (s *HostService) Allow(ctx context.Context, host string) error {
	return s.denylist.Allow(ctx, host)
}
