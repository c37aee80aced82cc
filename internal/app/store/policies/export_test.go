package policystore

// SetLoadHook installs fn between a cache miss's read and its fill.
func (s *Store) SetLoadHook(fn func(kind string, id int64)) { s.loaded = fn }
