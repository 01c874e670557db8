package telemetry

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storyforge/storyforge/internal/log"
	"github.com/storyforge/storyforge/internal/pipeline"
)

func newRecorder() *CostRecorder {
	return NewCostRecorder(log.New(log.Config{Level: log.LevelError, Output: log.NewOutput(io.Discard)}))
}

func TestCostRecorderAggregates(t *testing.T) {
	rec := newRecorder()

	rec.ReportCost("S1", pipeline.StageDraft, 4200)
	rec.ReportCost("S2", pipeline.StageDraft, 3800)
	rec.ReportCost("S1", pipeline.StageLogic, 2900)

	assert.Equal(t, int64(10_900), rec.Total())

	byStage := rec.ByStage()
	assert.Equal(t, int64(8000), byStage[pipeline.StageDraft])
	assert.Equal(t, int64(2900), byStage[pipeline.StageLogic])
	assert.Zero(t, byStage[pipeline.StageReport])
}

func TestCostRecorderByStageIsACopy(t *testing.T) {
	rec := newRecorder()
	rec.ReportCost("S1", pipeline.StageDraft, 100)

	byStage := rec.ByStage()
	byStage[pipeline.StageDraft] = 0

	assert.Equal(t, int64(100), rec.ByStage()[pipeline.StageDraft])
}

func TestCostRecorderConcurrentReports(t *testing.T) {
	rec := newRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.ReportCost("S1", pipeline.StageStyle, 10)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), rec.Total())
	assert.Equal(t, int64(1000), rec.ByStage()[pipeline.StageStyle])
}
