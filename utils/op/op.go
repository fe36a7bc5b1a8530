// Package op provides extended Gorgonia graph operations.
//
// Adapted from aunum/G.ld on GitHub
package op

import (
	G "gorgonia.org/gorgonia"
)

// LogSumExp calculates the log of the summation of exponentials of
// all logits along the given axis.
//
// Use this in place of Gorgonia's LogSumExp, which has the final sum
// and log interchanged, which is incorrect.
func LogSumExp(logits *G.Node, along int) *G.Node {
	max := G.Must(G.Max(logits, along))

	exponent := G.Must(G.BroadcastSub(logits, max, nil, []byte{1}))
	exponent = G.Must(G.Exp(exponent))

	sum := G.Must(G.Sum(exponent, along))
	log := G.Must(G.Log(sum))

	return G.Must(G.Add(max, log))
}

// LogSoftmax returns the row-wise log-softmax of a matrix of logits
func LogSoftmax(logits *G.Node) *G.Node {
	lse := LogSumExp(logits, 1)
	return G.Must(G.BroadcastSub(logits, lse, nil, []byte{1}))
}

// Entropy returns the entropy of each row of a matrix of logits,
// -Σ p log p, as a vector
func Entropy(logits *G.Node) *G.Node {
	logProbs := LogSoftmax(logits)
	probs := G.Must(G.Exp(logProbs))
	h := G.Must(G.Sum(G.Must(G.HadamardProd(probs, logProbs)), 1))
	return G.Must(G.Neg(h))
}

// Bounded squashes x smoothly into (-bound, bound) as
// bound * tanh(x / bound)
func Bounded(x *G.Node, bound float64) *G.Node {
	b := G.NewConstant(bound)
	scaled := G.Must(G.HadamardDiv(x, b))
	return G.Must(G.HadamardProd(G.Must(G.Tanh(scaled)), b))
}

// SegmentSoftmax computes a softmax of the vector scores within each
// segment. The (segments x n) matrix membership sums over segments and
// its (n x segments) transpose broadcast copies segment values back.
// Scores should be bounded since no maximum is subtracted.
func SegmentSoftmax(scores, membership, broadcast *G.Node) *G.Node {
	exp := G.Must(G.Exp(scores))
	denom := G.Must(G.Mul(membership, exp))
	denom = G.Must(G.Mul(broadcast, denom))
	return G.Must(G.HadamardDiv(exp, denom))
}
