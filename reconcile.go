package gevabroker

// reconcileInto copies every observable field from returned into original,
// preserving original's identity at its submission position: the core never
// swaps a slice slot for the item that comes back from a Consumer, since a
// remote or resubmitted item is a distinct Go value from the one the
// algorithm holds a reference to (see spec.md §4's original-pointer-table
// invariant and DESIGN.md's note on how courtier-id-indexed
// delivery removes the need for the teacher's completion-ordering machinery:
// position is already explicit in the courtier id, so there is nothing left
// to reorder).
func reconcileInto(original, returned WorkItem) {
	original.SetStatus(returned.Status())
	original.SetErrorText(returned.ErrorText())
	original.SetResults(returned.Results())
	for original.Attempts() < returned.Attempts() {
		original.IncrementAttempts()
	}
}
