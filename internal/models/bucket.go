package models

// Bucket is the experiment condition a member is assigned to.
type Bucket string

const (
	BucketControl   Bucket = "control"
	BucketTreatment Bucket = "treatment"
)

// Valid reports whether b is one of the two known buckets.
func (b Bucket) Valid() bool {
	return b == BucketControl || b == BucketTreatment
}

// Opposite returns the other bucket.
func (b Bucket) Opposite() Bucket {
	if b == BucketControl {
		return BucketTreatment
	}
	return BucketControl
}

// Tally counts control and treatment assignments.
type Tally struct {
	Control   int `json:"control"`
	Treatment int `json:"treatment"`
}

// Add increments the counter for b.
func (t *Tally) Add(b Bucket) {
	switch b {
	case BucketControl:
		t.Control++
	case BucketTreatment:
		t.Treatment++
	}
}

// Merge adds the counts of other into t.
func (t *Tally) Merge(other Tally) {
	t.Control += other.Control
	t.Treatment += other.Treatment
}

// Total returns the number of assignments counted.
func (t Tally) Total() int {
	return t.Control + t.Treatment
}

// Delta returns the absolute difference between control and treatment.
func (t Tally) Delta() int {
	d := t.Control - t.Treatment
	if d < 0 {
		return -d
	}
	return d
}

// SignedDelta returns control minus treatment.
func (t Tally) SignedDelta() int {
	return t.Control - t.Treatment
}
