package imgload

import "sync"

// Binding identifies the download task that owns a target.
//
// Gen is unique per task for the life of a Downloader, and a binding also
// records which Downloader issued it, so a target passed to several
// Downloaders never resolves to another one's task. The zero Binding means
// no task. A binding whose task has finished or been cancelled resolves to
// no task.
type Binding struct {
	Key string
	Gen uint64

	owner uint64
}

// IsZero reports whether b names no task.
func (b Binding) IsZero() bool {
	return b.Gen == 0
}

// Placeholder is the transient visual shown while a download is in flight.
//
// Image is the caller's default image, or nil for a neutral placeholder.
// Binding names the task that installed it.
type Placeholder struct {
	Image   *Image
	Binding Binding
}

// Target is a consumer of downloaded images, typically a UI element that
// may be recycled for a different key at any time.
//
// A Downloader calls these methods only on its scheduler.
type Target interface {
	// SetImage shows img. A nil img clears the target.
	SetImage(img *Image)

	// SetPlaceholder shows p while a download is in flight.
	SetPlaceholder(p Placeholder)

	// Binding returns the binding last stored with SetBinding.
	Binding() Binding

	// SetBinding stores b with the target.
	SetBinding(b Binding)
}

// Slot is a Target that simply records what it was given. It is safe for
// concurrent use, so it can be inspected from outside the scheduler.
type Slot struct {
	mu          sync.Mutex
	image       *Image
	placeholder *Placeholder
	binding     Binding
}

var _ Target = (*Slot)(nil)

// SetImage implements Target. It replaces any placeholder.
func (s *Slot) SetImage(img *Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = img
	s.placeholder = nil
}

// SetPlaceholder implements Target. It replaces any image.
func (s *Slot) SetPlaceholder(p Placeholder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = nil
	s.placeholder = &p
}

// Binding implements Target.
func (s *Slot) Binding() Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binding
}

// SetBinding implements Target.
func (s *Slot) SetBinding(b Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binding = b
}

// Image returns the image currently shown, or nil.
func (s *Slot) Image() *Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// Placeholder returns the placeholder currently shown, if any.
func (s *Slot) Placeholder() (Placeholder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placeholder == nil {
		return Placeholder{}, false
	}
	return *s.placeholder, true
}

// Owner returns the binding of the task that installed the current visual:
// the placeholder's binding, or the zero Binding when an image or nothing is
// shown.
func (s *Slot) Owner() Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placeholder == nil {
		return Binding{}
	}
	return s.placeholder.Binding
}
