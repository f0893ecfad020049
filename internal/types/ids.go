package types

// GetId implementations satisfy storage.Identifiable for every stored
// entity kind.

func (r *StageRecord) GetId() string         { return r.Id }
func (r *ParkedRecord) GetId() string        { return r.Id }
func (r *RejectionReport) GetId() string     { return r.Id }
func (r *ReferenceItem) GetId() string       { return r.Id }
func (k *KeyIndex) GetId() string            { return k.Id }
func (l *IdentityLink) GetId() string        { return l.Id }
func (t *ProjectionTask) GetId() string      { return t.Id }
func (c *CanonicalProjection) GetId() string { return c.Id }
func (l *LineageProjection) GetId() string   { return l.Id }
func (p *PolicyState) GetId() string         { return p.Id }
func (s *RootSnapshot) GetId() string        { return s.Id }
