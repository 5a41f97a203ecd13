package acer

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/samuelfneumann/goacer/distribution"
)

// minKLGradNorm is the squared norm of the KL gradient below which the
// trust region constraint is considered inactive
const minKLGradNorm = 1e-12

// KLConstrainedLoss projects the gradient of loss so that a step along
// it does not increase KL(avg ‖ π) by more than delta, to first order.
//
// With g = -∇loss and k = ∇KL(avg ‖ π), the returned loss has gradient
// -(g - max(0, (k·g - δ) / k·k) k). Both gradients are with respect to
// the parameters of π. The value of the returned loss is the value of
// the argument loss. The second return value is KL(avg ‖ π).
func KLConstrainedLoss(loss Loss, pi, avg distribution.Distribution,
	delta float64) (Loss, float64) {
	g := make([]float64, len(loss.Grad))
	floats.ScaleTo(g, -1, loss.Grad)

	k := pi.KLGrad(avg)
	kl := avg.KL(pi)

	kk := floats.Dot(k, k)
	scale := 0.0
	if kk > minKLGradNorm {
		scale = math.Max(0, (floats.Dot(k, g)-delta)/kk)
	}

	// z = g - scale * k, and the gradient of the loss is -z
	grad := make([]float64, len(g))
	floats.AddScaledTo(grad, g, -scale, k)
	floats.Scale(-1, grad)

	return Loss{Value: loss.Value, Grad: grad}, kl
}
