package theory

// Interval is one of the variant positions a movable swara can take.
type Interval struct {
	Name      string
	Semitones int
}

var (
	R1 = Interval{"R1", 1}
	R2 = Interval{"R2", 2}
	G2 = Interval{"G2", 3}
	G3 = Interval{"G3", 4}
	M1 = Interval{"M1", 5}
	M2 = Interval{"M2", 6}
	D1 = Interval{"D1", 8}
	D2 = Interval{"D2", 9}
	N2 = Interval{"N2", 10}
	N3 = Interval{"N3", 11}
)

// Raga assigns intervals to the movable swaras. Sa, Pa and high Sa are fixed.
type Raga struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Ri   Interval `json:"-"`
	Ga   Interval `json:"-"`
	Ma   Interval `json:"-"`
	Da   Interval `json:"-"`
	Ni   Interval `json:"-"`
}

// Ragas ships fifteen melakartas. The first is the default.
var Ragas = []Raga{
	{ID: "shankarabharanam", Name: "Shankarabharanam", Ri: R2, Ga: G3, Ma: M1, Da: D2, Ni: N3},
	{ID: "kalyani", Name: "Kalyani", Ri: R2, Ga: G3, Ma: M2, Da: D2, Ni: N3},
	{ID: "kharaharapriya", Name: "Kharaharapriya", Ri: R2, Ga: G2, Ma: M1, Da: D2, Ni: N2},
	{ID: "mayamalavagowla", Name: "Mayamalavagowla", Ri: R1, Ga: G3, Ma: M1, Da: D1, Ni: N3},
	{ID: "harikambhoji", Name: "Harikambhoji", Ri: R2, Ga: G3, Ma: M1, Da: D2, Ni: N2},
	{ID: "natabhairavi", Name: "Natabhairavi", Ri: R2, Ga: G2, Ma: M1, Da: D1, Ni: N2},
	{ID: "hanumatodi", Name: "Hanumatodi", Ri: R1, Ga: G2, Ma: M1, Da: D1, Ni: N2},
	{ID: "keeravani", Name: "Keeravani", Ri: R2, Ga: G2, Ma: M1, Da: D1, Ni: N3},
	{ID: "charukesi", Name: "Charukesi", Ri: R2, Ga: G3, Ma: M1, Da: D1, Ni: N2},
	{ID: "simhendramadhyamam", Name: "Simhendramadhyamam", Ri: R2, Ga: G2, Ma: M2, Da: D1, Ni: N3},
	{ID: "shanmukhapriya", Name: "Shanmukhapriya", Ri: R2, Ga: G2, Ma: M2, Da: D1, Ni: N2},
	{ID: "hemavati", Name: "Hemavati", Ri: R2, Ga: G2, Ma: M2, Da: D2, Ni: N2},
	{ID: "gowrimanohari", Name: "Gowrimanohari", Ri: R2, Ga: G2, Ma: M1, Da: D2, Ni: N3},
	{ID: "vachaspati", Name: "Vachaspati", Ri: R2, Ga: G3, Ma: M2, Da: D2, Ni: N2},
	{ID: "chakravakam", Name: "Chakravakam", Ri: R1, Ga: G3, Ma: M1, Da: D2, Ni: N2},
}

// DefaultRaga is Shankarabharanam, the major scale.
var DefaultRaga = Ragas[0]

// LookupRaga finds a raga by id.
func LookupRaga(id string) (Raga, bool) {
	for _, r := range Ragas {
		if r.ID == id {
			return r, true
		}
	}
	return Raga{}, false
}

// Resolve returns a copy of swara id with this raga's offset baked in.
func (r Raga) Resolve(id SwaraID) (Swara, bool) {
	if !id.Valid() {
		return Swara{}, false
	}
	s := Swara{ID: id, Key: id.Key(), Label: id.Label()}
	switch id {
	case Sa:
		s.ShortLabel, s.Semitones = "S", 0
	case Pa:
		s.ShortLabel, s.Semitones = "P", 7
	case HighSa:
		s.ShortLabel, s.Semitones = "Ṡ", 12
	default:
		iv := r.interval(id)
		s.ShortLabel, s.Semitones = iv.Name, iv.Semitones
	}
	return s, true
}

// Scale resolves all eight swaras.
func (r Raga) Scale() []Swara {
	out := make([]Swara, 0, NumSwaras)
	for id := Sa; id < NumSwaras; id++ {
		s, _ := r.Resolve(id)
		out = append(out, s)
	}
	return out
}

func (r Raga) interval(id SwaraID) Interval {
	switch id {
	case Ri:
		return r.Ri
	case Ga:
		return r.Ga
	case Ma:
		return r.Ma
	case Da:
		return r.Da
	case Ni:
		return r.Ni
	}
	return Interval{}
}
