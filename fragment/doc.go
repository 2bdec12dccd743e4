// Package fragment reads query results out of one or more array
// fragments, each a flat directory of attribute files, a variable-size
// payload file per variable attribute, a coordinates file (sparse
// only) and a bookkeeping file.
//
// A single fragment:
//
//	f, err := fragment.Open(dir, sch)
//	rs, err := f.NewReadState(queryRange)
//	for {
//	    err := rs.Read(buffers)
//	    // consume buffers; if any Buffer.Overflow, call rs.Read again
//	    // with fresh buffers to resume
//	    if rs.Done() { break }
//	}
//
// Several fragments of the same array, newest-wins on overlapping
// cells:
//
//	mr, err := fragment.NewMultiFragmentReader(sch, f1, f2, f3)
//	coords, values, err := mr.ReadMerged(ctx, "temperature", queryRange)
package fragment
