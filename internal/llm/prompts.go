package llm

// answerPrompt grounds the generated answer strictly in the retrieved
// evidence. The model is told to admit missing information rather than
// invent it; the confidence estimator keys on those admissions.
const answerPrompt = `You are a helpdesk assistant for this organization.
Answer the user's question using ONLY the following documentation excerpts.

DOCUMENTATION EXCERPTS:
%s

QUESTION: %s

INSTRUCTIONS:
- Give a clear, direct answer based on the available information
- Quote the documentation verbatim where an exact wording matters
- Include every relevant detail: names, amounts, dates, deadlines
- If the information is incomplete or not present, say so explicitly
- Structure the answer with short paragraphs or lists when it helps
- If the excerpts cover several products or policies, say which one you mean

ANSWER:`

// reformulatePrompt asks for exactly three alternative phrasings of the
// user's query, one per line, for multi-query retrieval.
const reformulatePrompt = `You are an expert at searching helpdesk and policy documentation.
Your task is to generate multiple versions of the user's question to retrieve
relevant documents from a vector database.

When generating variations, consider:
- Different ways of naming the same product, plan, or policy
- Synonyms and the formal terms the documentation itself would use
- Rephrasing the question around the underlying procedure or rule
- Terms related to accounts, billing, access, and entitlements

Original question: %s

Generate exactly 3 alternative versions of this question, one per line,
without numbering or bullets:`

// classifyPrompt asks for a single-word routing decision. The caller
// substring-matches the reply, so the wording pins the two valid outputs.
const classifyPrompt = `You are triaging helpdesk queries. Decide whether the generated answer can be
delivered to the user automatically or must be escalated to a human agent.

QUESTION: %s

RETRIEVED CONTEXT:
%s

HEURISTIC CONFIDENCE: %.2f

Escalate when the context does not actually cover the question, when the
answer would touch money, legal commitments, or account security, or when
the confidence is low.

Reply with exactly one word: "automatic" or "escalated".`
