package models

// Clone returns a deep copy of the snapshot. Backends hand out clones so a
// caller can never observe or mutate a half-written tree.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Seasons = make([]Season, len(s.Seasons))
	for i, season := range s.Seasons {
		out.Seasons[i] = season.Clone()
	}
	return out
}

// Clone returns a deep copy of the season.
func (s Season) Clone() Season {
	out := s
	out.Designers = make([]Designer, len(s.Designers))
	for i, designer := range s.Designers {
		out.Designers[i] = designer.Clone()
	}
	return out
}

// Clone returns a deep copy of the designer.
func (d Designer) Clone() Designer {
	out := d
	out.Looks = make([]Look, len(d.Looks))
	for i, look := range d.Looks {
		out.Looks[i] = look.Clone()
	}
	return out
}

// Clone returns a deep copy of the look.
func (l Look) Clone() Look {
	out := l
	out.Images = make([]Image, len(l.Images))
	copy(out.Images, l.Images)
	return out
}
