package vision

// CosineSimilarity computes the cosine similarity of two unit-norm vectors.
// Embeddings are normalized at extraction time, so this reduces to a dot
// product.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

// Match scans every enrolled sample and returns the user whose sample is
// most similar to the probe embedding. Every sample is compared; a user
// with several enrolled faces is matched through their best one. Returns
// ok=false when the gallery is empty.
func Match(probe []float32, gallery []Sample) (userID int64, score float32, ok bool) {
	if len(gallery) == 0 {
		return 0, 0, false
	}

	best := gallery[0]
	bestScore := CosineSimilarity(probe, best.Embedding)
	for _, s := range gallery[1:] {
		if sc := CosineSimilarity(probe, s.Embedding); sc > bestScore {
			bestScore = sc
			best = s
		}
	}

	return best.UserID, bestScore, true
}
